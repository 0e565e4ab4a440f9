package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/mattjoyce/nodeagent/internal/registry"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
)

// Envelope statuses.
const (
	StatusSuccess     = "success"
	StatusFailed      = "failed"
	StatusError       = "error"
	StatusReachable   = "reachable"
	StatusUnreachable = "unreachable"
)

// maxRelayBody caps how much of a node reply the gateway buffers.
const maxRelayBody = 8 << 20

// Envelope wraps every forwarded reply. The gateway answers 200 with an
// envelope even when the node failed; Status says what happened.
type Envelope struct {
	Status     string `json:"status"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

// MarshalJSON always emits data on success and failed replies, even when the
// node sent an empty body.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	if e.Status != StatusSuccess && e.Status != StatusFailed {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Data any `json:"data"`
	}{plain(e), e.Data})
}

// envelopeFor reads resp and wraps it. A 200 carries the node's JSON as
// data; anything else carries the raw body text.
func envelopeFor(resp *http.Response) Envelope {
	if resp.StatusCode == http.StatusOK {
		return decodeSuccess(resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBody))
	if err != nil {
		return Envelope{Status: StatusError, Error: err.Error()}
	}
	return Envelope{Status: StatusFailed, HTTPStatus: resp.StatusCode, Data: string(body)}
}

func decodeSuccess(resp *http.Response) Envelope {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBody))
	if err != nil {
		return Envelope{Status: StatusError, Error: err.Error()}
	}
	if !json.Valid(body) {
		return Envelope{Status: StatusSuccess, Data: strings.TrimSpace(string(body))}
	}
	return Envelope{Status: StatusSuccess, Data: json.RawMessage(body)}
}

// AddNodeRequest is the body of POST /nodes. Port defaults to the agent port.
type AddNodeRequest struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
	Port int    `json:"port,omitempty"`
}

// NodesResponse lists registered nodes.
type NodesResponse struct {
	Nodes []registry.Node `json:"nodes"`
}

// NodeHealth is one row of the fleet view.
type NodeHealth struct {
	registry.Node
	Reachable bool           `json:"reachable"`
	Usage     *sysstat.Usage `json:"usage,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// FleetResponse is the body of GET /fleet/status.
type FleetResponse struct {
	Nodes []NodeHealth `json:"nodes"`
}
