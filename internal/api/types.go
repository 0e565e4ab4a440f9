package api

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is returned by /clear-workspace/ and /interrupt/.
type StatusResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
}

// UploadResponse is returned by /upload-algo/.
type UploadResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Files  int    `json:"files"`
	Bytes  int64  `json:"bytes"`
	Digest string `json:"digest"`
}

// ExecResponse is returned once a command has been started.
type ExecResponse struct {
	Status string `json:"status"`
	Cmd    string `json:"cmd"`
	JobID  string `json:"job_id"`
}

// LogsResponse carries the newest job output lines joined by "\n".
type LogsResponse struct {
	Logs string `json:"logs"`
}

// FilesResponse lists a workspace directory.
type FilesResponse struct {
	Files []string `json:"files"`
}

// EntryTypeHeader tells clients whether /list-files/ answered with a file or
// a directory listing.
const EntryTypeHeader = "X-Entry-Type"

const (
	EntryFile = "file"
	EntryDir  = "dir"
)

// DefaultLogLines is used when /logs/ has no lines parameter.
const DefaultLogLines = 50

// StatusClientClosedRequest is reported when the caller went away before a
// workspace operation finished.
const StatusClientClosedRequest = 499
