package api

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/nodeagent/internal/api/mocks"
	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/logring"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
	"github.com/mattjoyce/nodeagent/internal/workspace"
)

type agent struct {
	url  string
	ring *logring.Ring
	hub  *events.Hub
}

// startAgent wires the real store, ring and controller behind an httptest
// server. Only the sampler is mocked.
func startAgent(t *testing.T) *agent {
	t.Helper()

	store, err := workspace.NewFSStore(filepath.Join(t.TempDir(), "ws"), nil)
	require.NoError(t, err)
	ring := logring.New(logring.DefaultCapacity)
	hub := events.NewHub(64)
	jobs := job.NewController(job.Config{Dir: store.Root()}, ring, hub)

	sampler := mocks.NewMockUsageSampler(gomock.NewController(t))
	sampler.EXPECT().Usage(gomock.Any()).Return(sysstat.Usage{CPU: 5, Memory: 50}, nil).AnyTimes()

	srv := New(Config{MaxUpload: 1 << 20}, jobs, ring, store, sampler, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, jobs.Shutdown(ctx))
	})
	return &agent{url: ts.URL, ring: ring, hub: hub}
}

func (a *agent) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(a.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *agent) postForm(t *testing.T, path string, form url.Values, out any) int {
	t.Helper()
	resp, err := http.PostForm(a.url+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *agent) upload(t *testing.T, payload []byte) UploadResponse {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "algo.zip")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(a.url+"/upload-algo/", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func zipOf(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestAgentExecAndLogs(t *testing.T) {
	a := startAgent(t)

	var exec ExecResponse
	require.Equal(t, http.StatusOK, a.postForm(t, "/exec/", url.Values{"cmd": {"echo hello"}}, &exec))
	assert.Equal(t, "running", exec.Status)
	assert.NotEmpty(t, exec.JobID)

	require.Eventually(t, func() bool {
		var logs LogsResponse
		a.getJSON(t, "/logs/", &logs)
		return strings.Contains(logs.Logs, "hello")
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		var snap job.Snapshot
		a.getJSON(t, "/status/", &snap)
		return snap.State == job.StateCompleted && snap.ExitCode != nil && *snap.ExitCode == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestAgentInterruptTwice(t *testing.T) {
	a := startAgent(t)

	require.Equal(t, http.StatusOK, a.postForm(t, "/exec/", url.Values{"cmd": {"sleep 30"}}, nil))

	var first, second StatusResponse
	require.Equal(t, http.StatusOK, a.postForm(t, "/interrupt/", nil, &first))
	require.Equal(t, http.StatusOK, a.postForm(t, "/interrupt/", nil, &second))
	assert.Equal(t, "terminated", first.Status)
	assert.Equal(t, "no process", second.Status)
}

func TestAgentUploadAndList(t *testing.T) {
	a := startAgent(t)

	dep := a.upload(t, zipOf(t, map[string]string{
		"model/weights.bin": "\x00\x01",
		"a.txt":             "alpha",
	}))
	assert.Equal(t, 2, dep.Files)
	assert.Len(t, dep.Digest, 64)

	var files FilesResponse
	require.Equal(t, http.StatusOK, a.getJSON(t, "/list-files/?path=model", &files))
	assert.Equal(t, []string{"weights.bin"}, files.Files)

	require.Equal(t, http.StatusOK, a.getJSON(t, "/list-files/", &files))
	assert.Equal(t, []string{"a.txt", "model"}, files.Files)

	resp, err := http.Get(a.url + "/list-files/?path=a.txt")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(body))
	assert.Equal(t, EntryFile, resp.Header.Get(EntryTypeHeader))

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, a.getJSON(t, "/list-files/?path=../secret", &errResp))

	// The job runs inside the deployed workspace.
	require.Equal(t, http.StatusOK, a.postForm(t, "/exec/", url.Values{"cmd": {"cat a.txt"}}, nil))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"alpha"}, a.ring.Tail(10))
	}, 3*time.Second, 20*time.Millisecond)

	var cleared StatusResponse
	require.Equal(t, http.StatusOK, a.postForm(t, "/clear-workspace/", nil, &cleared))
	require.Equal(t, http.StatusOK, a.getJSON(t, "/list-files/", &files))
	assert.Empty(t, files.Files)
}

func TestAgentResourceUsageAndHealth(t *testing.T) {
	a := startAgent(t)

	var usage sysstat.Usage
	require.Equal(t, http.StatusOK, a.getJSON(t, "/resource-usage/", &usage))
	assert.Equal(t, sysstat.Usage{CPU: 5, Memory: 50}, usage)

	var health sysstat.Health
	require.Equal(t, http.StatusOK, a.getJSON(t, "/health/", &health))
	assert.Equal(t, "alive", health.Status)
}

func TestAgentEventStream(t *testing.T) {
	a := startAgent(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/events/", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Equal(t, http.StatusOK, a.postForm(t, "/exec/", url.Values{"cmd": {"true"}}, nil))

	scanner := bufio.NewScanner(resp.Body)
	seen := map[string]bool{}
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			seen[name] = true
		}
		if seen[events.JobStarted] && seen[events.JobExited] {
			break
		}
	}
	assert.True(t, seen[events.JobStarted], "missing %s", events.JobStarted)
	assert.True(t, seen[events.JobExited], "missing %s", events.JobExited)
}
