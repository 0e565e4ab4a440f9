// Package nodeclient is a typed HTTP client for one agent node.
package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/nodeagent/internal/api"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/log"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
)

// ErrNotFound is matched by a StatusError carrying 404.
var ErrNotFound = errors.New("not found on node")

// StatusError is returned when the node answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("node returned %d", e.Code)
	}
	return fmt.Sprintf("node returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Timeouts bounds how long each kind of call may go without progress:
// waiting for the reply, or a stall while either body is streaming. A slow
// but steady transfer is never cut off. Zero disables the bound.
type Timeouts struct {
	// Short covers health, usage, logs, status and interrupt.
	Short time.Duration
	// Medium covers clear, exec and file listing or download.
	Medium time.Duration
	// Upload covers archive uploads.
	Upload time.Duration
}

// DefaultTimeouts mirrors what operators expect from the gateway.
var DefaultTimeouts = Timeouts{
	Short:  5 * time.Second,
	Medium: 10 * time.Second,
	Upload: 30 * time.Second,
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts replaces DefaultTimeouts.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) { c.timeouts = t }
}

// Client talks to a single agent.
type Client struct {
	base     *url.URL
	http     *http.Client
	timeouts Timeouts
	logger   *slog.Logger
}

// New returns a client for addr, which is either a base URL or host:port.
func New(addr string, opts ...Option) (*Client, error) {
	base, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:     base,
		http:     http.DefaultClient,
		timeouts: DefaultTimeouts,
		logger:   log.WithNode(base.Host),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForNode builds a client from an IP (or host name) and port.
func ForNode(host string, port int, opts ...Option) (*Client, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("node host is required")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid node port %d", port)
	}
	return New(net.JoinHostPort(host, strconv.Itoa(port)), opts...)
}

func parseAddr(addr string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("node address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid node address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid node address %q", addr)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// BaseURL returns the node's base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Timeouts returns the per-call bounds in effect.
func (c *Client) Timeouts() Timeouts { return c.timeouts }

// Request describes a raw call for Do.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        io.Reader
	ContentType string
	Header      http.Header
	Timeout     time.Duration
}

// Do sends req and returns the response unchanged, whatever its status. The
// caller must close the body. req.Timeout stays in force as an inactivity
// bound until then.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	u := *c.base
	u.Path = c.base.Path + req.Path
	u.RawQuery = req.Query.Encode()

	ctx, cancel := context.WithCancel(ctx)
	idle := newIdleTimer(req.Timeout, cancel)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), req.Body)
	if err != nil {
		idle.stop()
		cancel()
		return nil, err
	}
	if httpReq.Body != nil && httpReq.Body != http.NoBody {
		httpReq.Body = &idleBody{ReadCloser: httpReq.Body, idle: idle}
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if idle.fired() {
			err = fmt.Errorf("%s %s: no progress for %s: %w", req.Method, req.Path, req.Timeout, err)
		}
		idle.stop()
		cancel()
		c.logger.Debug("node request failed", "method", req.Method, "path", req.Path, "error", err)
		return nil, err
	}
	c.logger.Debug("node request", "method", req.Method, "path", req.Path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	idle.kick()
	resp.Body = &idleBody{ReadCloser: resp.Body, idle: idle, cancel: cancel}
	return resp, nil
}

// idleTimer cancels a request once d passes without a kick. A zero d never
// fires.
type idleTimer struct {
	d      time.Duration
	timer  *time.Timer
	expire atomic.Bool
}

func newIdleTimer(d time.Duration, cancel context.CancelFunc) *idleTimer {
	t := &idleTimer{d: d}
	if d > 0 {
		t.timer = time.AfterFunc(d, func() {
			t.expire.Store(true)
			cancel()
		})
	}
	return t
}

func (t *idleTimer) kick() {
	if t.timer != nil && !t.expire.Load() {
		t.timer.Reset(t.d)
	}
}

func (t *idleTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *idleTimer) fired() bool { return t.expire.Load() }

// idleBody kicks the idle timer on every read. On the response side, Close
// releases the request context.
type idleBody struct {
	io.ReadCloser
	idle   *idleTimer
	cancel context.CancelFunc
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.idle.kick()
	}
	if err != nil && err != io.EOF && b.idle.fired() {
		err = fmt.Errorf("no progress for %s: %w", b.idle.d, err)
	}
	return n, err
}

func (b *idleBody) Close() error {
	err := b.ReadCloser.Close()
	if b.cancel != nil {
		b.idle.stop()
		b.cancel()
	}
	return err
}

// call sends req and decodes a 2xx JSON body into out.
func (c *Client) call(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr api.ErrorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

// Health probes /health/.
func (c *Client) Health(ctx context.Context) (sysstat.Health, error) {
	var out sysstat.Health
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/health/", Timeout: c.timeouts.Short}, &out)
	return out, err
}

// ResourceUsage reads CPU and memory utilization.
func (c *Client) ResourceUsage(ctx context.Context) (sysstat.Usage, error) {
	var out sysstat.Usage
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/resource-usage/", Timeout: c.timeouts.Short}, &out)
	return out, err
}

// Logs returns up to lines of the newest job output.
func (c *Client) Logs(ctx context.Context, lines int) (string, error) {
	var out api.LogsResponse
	q := url.Values{"lines": {strconv.Itoa(lines)}}
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/logs/", Query: q, Timeout: c.timeouts.Short}, &out)
	return out.Logs, err
}

// Status returns the job slot snapshot.
func (c *Client) Status(ctx context.Context) (job.Snapshot, error) {
	var out job.Snapshot
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "/status/", Timeout: c.timeouts.Short}, &out)
	return out, err
}

// Exec starts cmd on the node.
func (c *Client) Exec(ctx context.Context, cmd string) (api.ExecResponse, error) {
	var out api.ExecResponse
	form := url.Values{"cmd": {cmd}}
	err := c.call(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/exec/",
		Body:        strings.NewReader(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
		Timeout:     c.timeouts.Medium,
	}, &out)
	return out, err
}

// Interrupt stops the node's job and returns "terminated" or "no process".
func (c *Client) Interrupt(ctx context.Context) (job.Outcome, error) {
	var out api.StatusResponse
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "/interrupt/", Timeout: c.timeouts.Short}, &out)
	return job.Outcome(out.Status), err
}

// Clear empties the node's workspace apart from its keep list.
func (c *Client) Clear(ctx context.Context) error {
	return c.call(ctx, Request{Method: http.MethodPost, Path: "/clear-workspace/", Timeout: c.timeouts.Medium}, nil)
}

// Upload streams a zip archive read from r as the multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (api.UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(fw, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var out api.UploadResponse
	err := c.call(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/upload-algo/",
		Body:        pr,
		ContentType: mw.FormDataContentType(),
		Timeout:     c.timeouts.Upload,
	}, &out)
	// Unblocks the writer if the request ended before the body was read.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	return out, err
}

// Entry is a /list-files/ result. Directories carry Files; files carry an
// open Body the caller must close.
type Entry struct {
	IsDir       bool
	Files       []string
	ContentType string
	Body        io.ReadCloser
}

// List fetches a workspace path relative to the node's root.
func (c *Client) List(ctx context.Context, rel string) (*Entry, error) {
	resp, err := c.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/list-files/",
		Query:   url.Values{"path": {rel}},
		Timeout: c.timeouts.Medium,
	})
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	if isDirResponse(resp) {
		defer resp.Body.Close()
		var out api.FilesResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode listing of %q: %w", rel, err)
		}
		return &Entry{IsDir: true, Files: out.Files}, nil
	}
	return &Entry{ContentType: resp.Header.Get("Content-Type"), Body: resp.Body}, nil
}

// isDirResponse prefers the entry-type header and falls back to the body
// shape agents without it produce.
func isDirResponse(resp *http.Response) bool {
	switch resp.Header.Get(api.EntryTypeHeader) {
	case api.EntryDir:
		return true
	case api.EntryFile:
		return false
	}
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json")
}
