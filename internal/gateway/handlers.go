package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/nodeagent/internal/api"
	"github.com/mattjoyce/nodeagent/internal/nodeclient"
	"github.com/mattjoyce/nodeagent/internal/registry"
)

// errBadTarget marks requests that do not name a usable node.
var errBadTarget = errors.New("bad node target")

// targetRequest is the JSON body of the POST forwarders.
type targetRequest struct {
	Node string `json:"node,omitempty"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
	Cmd  string `json:"cmd,omitempty"`
}

// clientFor builds a node client from an ip/port pair or a registered node
// name.
func (s *Server) clientFor(r *http.Request, t targetRequest) (*nodeclient.Client, error) {
	if t.Node != "" {
		n, err := s.registry.Get(r.Context(), t.Node)
		if err != nil {
			return nil, err
		}
		t.IP, t.Port = n.Host, n.Port
	}
	if t.IP == "" || t.Port == 0 {
		return nil, fmt.Errorf("%w: ip and port (or node) are required", errBadTarget)
	}
	c, err := nodeclient.ForNode(t.IP, t.Port, s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadTarget, err)
	}
	return c, nil
}

// queryTarget reads ip, port and node from the query string.
func queryTarget(q url.Values) (targetRequest, error) {
	t := targetRequest{Node: q.Get("node"), IP: q.Get("ip")}
	if raw := q.Get("port"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return t, fmt.Errorf("%w: port must be an integer", errBadTarget)
		}
		t.Port = port
	}
	return t, nil
}

func (s *Server) queryClient(w http.ResponseWriter, r *http.Request) (*nodeclient.Client, bool) {
	t, err := queryTarget(r.URL.Query())
	if err == nil {
		var c *nodeclient.Client
		if c, err = s.clientFor(r, t); err == nil {
			return c, true
		}
	}
	s.writeTargetError(w, err)
	return nil, false
}

func (s *Server) bodyClient(w http.ResponseWriter, r *http.Request) (*nodeclient.Client, targetRequest, bool) {
	var t targetRequest
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, t, false
	}
	c, err := s.clientFor(r, t)
	if err != nil {
		s.writeTargetError(w, err)
		return nil, t, false
	}
	return c, t, true
}

func (s *Server) writeTargetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "node not found")
	case errors.Is(err, errBadTarget):
		s.writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadTarget.Error()+": "))
	default:
		s.logger.Error("failed to resolve node", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve node")
	}
}

// handleCheckNodeStatus handles GET /check-node-status.
func (s *Server) handleCheckNodeStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.queryClient(w, r)
	if !ok {
		return
	}
	resp, err := c.Do(r.Context(), nodeclient.Request{
		Method:  http.MethodGet,
		Path:    "/health/",
		Timeout: c.Timeouts().Short,
	})
	if err != nil {
		respondJSON(w, http.StatusOK, Envelope{Status: StatusError, Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respondJSON(w, http.StatusOK, Envelope{Status: StatusUnreachable, HTTPStatus: resp.StatusCode})
		return
	}
	env := decodeSuccess(resp)
	if env.Status == StatusSuccess {
		env.Status = StatusReachable
	}
	respondJSON(w, http.StatusOK, env)
}

// handleGetResourceUsage handles GET /get-resource-usage.
func (s *Server) handleGetResourceUsage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.queryClient(w, r)
	if !ok {
		return
	}
	s.forward(w, r, c, nodeclient.Request{Method: http.MethodGet, Path: "/resource-usage/", Timeout: c.Timeouts().Short})
}

// handleGetLogs handles GET /get-logs.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	c, ok := s.queryClient(w, r)
	if !ok {
		return
	}
	lines := r.URL.Query().Get("lines")
	if lines == "" {
		lines = strconv.Itoa(api.DefaultLogLines)
	}
	if _, err := strconv.Atoi(lines); err != nil {
		s.writeError(w, http.StatusBadRequest, "lines must be an integer")
		return
	}
	s.forward(w, r, c, nodeclient.Request{
		Method:  http.MethodGet,
		Path:    "/logs/",
		Query:   url.Values{"lines": {lines}},
		Timeout: c.Timeouts().Short,
	})
}

// handleListFiles handles GET /list-files. File content is passed through
// unwrapped; directory listings are wrapped like every other reply.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	c, ok := s.queryClient(w, r)
	if !ok {
		return
	}
	resp, err := c.Do(r.Context(), nodeclient.Request{
		Method:  http.MethodGet,
		Path:    "/list-files/",
		Query:   url.Values{"path": {r.URL.Query().Get("path")}},
		Timeout: c.Timeouts().Medium,
	})
	if err != nil {
		respondJSON(w, http.StatusOK, Envelope{Status: StatusError, Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && isRawFile(resp) {
		for _, h := range []string{"Content-Type", "Content-Length", "Last-Modified", api.EntryTypeHeader} {
			if v := resp.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, resp.Body); err != nil {
			s.logger.Warn("file pass-through interrupted", "error", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, envelopeFor(resp))
}

// isRawFile decides whether a list-files reply is file content. Agents that
// do not send the entry-type header are judged by content type.
func isRawFile(resp *http.Response) bool {
	switch resp.Header.Get(api.EntryTypeHeader) {
	case api.EntryFile:
		return true
	case api.EntryDir:
		return false
	}
	ct := resp.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/octet-stream") || strings.HasPrefix(ct, "text/")
}

// handleClearWorkspace handles POST /clear-workspace.
func (s *Server) handleClearWorkspace(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.bodyClient(w, r)
	if !ok {
		return
	}
	s.forward(w, r, c, nodeclient.Request{Method: http.MethodPost, Path: "/clear-workspace/", Timeout: c.Timeouts().Medium})
}

// handleExecCommand handles POST /exec-command.
func (s *Server) handleExecCommand(w http.ResponseWriter, r *http.Request) {
	c, t, ok := s.bodyClient(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(t.Cmd) == "" {
		s.writeError(w, http.StatusBadRequest, "cmd is required")
		return
	}
	form := url.Values{"cmd": {t.Cmd}}
	s.forward(w, r, c, nodeclient.Request{
		Method:      http.MethodPost,
		Path:        "/exec/",
		Body:        strings.NewReader(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
		Timeout:     c.Timeouts().Medium,
	})
}

// handleInterruptProcess handles POST /interrupt-process.
func (s *Server) handleInterruptProcess(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.bodyClient(w, r)
	if !ok {
		return
	}
	s.forward(w, r, c, nodeclient.Request{Method: http.MethodPost, Path: "/interrupt/", Timeout: c.Timeouts().Short})
}

// handleUploadAlgo handles POST /upload-algo with multipart fields ip, port
// (or node) and file.
func (s *Server) handleUploadAlgo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.MaxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart form with ip, port and file is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	t, err := queryTarget(url.Values(r.MultipartForm.Value))
	if err != nil {
		s.writeTargetError(w, err)
		return
	}
	c, err := s.clientFor(r, t)
	if err != nil {
		s.writeTargetError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	body, contentType := multipartBody(header.Filename, file)
	s.forward(w, r, c, nodeclient.Request{
		Method:      http.MethodPost,
		Path:        "/upload-algo/",
		Body:        body,
		ContentType: contentType,
		Timeout:     c.Timeouts().Upload,
	})
}

// multipartBody re-encodes src as a single "file" field, streamed.
func multipartBody(filename string, src io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(fw, src)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

// forward sends req to the node and writes the wrapped reply.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, c *nodeclient.Client, req nodeclient.Request) {
	start := time.Now()
	resp, err := c.Do(r.Context(), req)
	if err != nil {
		s.logger.Warn("node unreachable", "node", c.BaseURL(), "path", req.Path, "error", err)
		if pr, ok := req.Body.(*io.PipeReader); ok {
			_ = pr.CloseWithError(err)
		}
		respondJSON(w, http.StatusOK, Envelope{Status: StatusError, Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	s.logger.Debug("forwarded", "node", c.BaseURL(), "path", req.Path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	respondJSON(w, http.StatusOK, envelopeFor(resp))
}

// handleListNodes handles GET /nodes.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list nodes", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	respondJSON(w, http.StatusOK, NodesResponse{Nodes: nodes})
}

// handleAddNode handles POST /nodes.
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := s.registry.Add(r.Context(), registry.Node{Name: req.Name, Host: req.IP, Port: req.Port})
	switch {
	case errors.Is(err, registry.ErrDuplicate):
		s.writeError(w, http.StatusConflict, "node name already registered")
	case errors.Is(err, registry.ErrInvalid):
		s.writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), registry.ErrInvalid.Error()+": "))
	case err != nil:
		s.logger.Error("failed to add node", "name", req.Name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to add node")
	default:
		s.logger.Info("node registered", "name", n.Name, "ip", n.Host, "port", n.Port)
		respondJSON(w, http.StatusCreated, n)
	}
}

// handleRemoveNode handles DELETE /nodes/{name}.
func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.registry.Remove(r.Context(), name)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "node not found")
	case err != nil:
		s.logger.Error("failed to remove node", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to remove node")
	default:
		s.logger.Info("node removed", "name", name)
		w.WriteHeader(http.StatusNoContent)
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, api.ErrorResponse{Error: message})
}
