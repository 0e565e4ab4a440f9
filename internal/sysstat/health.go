package sysstat

// Health is the liveness reply.
type Health struct {
	Status string `json:"status"`
}

// Alive is returned for as long as the process serves requests.
var Alive = Health{Status: "alive"}
