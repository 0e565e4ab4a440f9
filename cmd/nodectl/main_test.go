package main

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/nodeagent/internal/api"
	"github.com/mattjoyce/nodeagent/internal/api/mocks"
	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/logring"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
	"github.com/mattjoyce/nodeagent/internal/workspace"
)

func startAgent(t *testing.T) string {
	t.Helper()

	store, err := workspace.NewFSStore(filepath.Join(t.TempDir(), "ws"), nil)
	require.NoError(t, err)
	ring := logring.New(100)
	hub := events.NewHub(16)
	jobs := job.NewController(job.Config{Dir: store.Root()}, ring, hub)

	sampler := mocks.NewMockUsageSampler(gomock.NewController(t))
	sampler.EXPECT().Usage(gomock.Any()).Return(sysstat.Usage{CPU: 7, Memory: 21}, nil).AnyTimes()

	srv := api.New(api.Config{}, jobs, ring, store, sampler, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, jobs.Shutdown(ctx))
	})
	return ts.URL
}

// testConfig writes a config whose registry lives in a temp dir.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "gateway:\n  registry: " + filepath.Join(dir, "nodes.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNodeCommands(t *testing.T) {
	t.Setenv(EnvNode, "")
	addr := startAgent(t)
	cfg := testConfig(t)

	out, err := run(t, cfg, "--node", addr, "health")
	require.NoError(t, err)
	assert.Equal(t, addr+" alive\n", out)

	out, err = run(t, cfg, "-n", addr, "usage", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cpu":7,"memory":21}`, out)

	out, err = run(t, cfg, "-n", addr, "exec", "--", "echo", "hello;", "sleep", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "echo hello; sleep 30")

	require.Eventually(t, func() bool {
		out, err := run(t, cfg, "-n", addr, "logs", "-l", "5")
		return err == nil && out == "hello\n"
	}, 3*time.Second, 20*time.Millisecond)

	out, err = run(t, cfg, "-n", addr, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "running"`)

	out, err = run(t, cfg, "-n", addr, "interrupt")
	require.NoError(t, err)
	assert.Equal(t, "terminated\n", out)

	out, err = run(t, cfg, "-n", addr, "interrupt")
	require.NoError(t, err)
	assert.Equal(t, "no process\n", out)
}

func TestUploadLsPull(t *testing.T) {
	t.Setenv(EnvNode, "")
	addr := startAgent(t)
	cfg := testConfig(t)
	dir := t.TempDir()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{"run/a.txt": "alpha", "run/logs/b.txt": "bravo"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	archive := filepath.Join(dir, "algo.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	out, err := run(t, cfg, "-n", addr, "upload", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "2 files")

	out, err = run(t, cfg, "-n", addr, "ls", "run")
	require.NoError(t, err)
	assert.Equal(t, "a.txt\nlogs\n", out)

	out, err = run(t, cfg, "-n", addr, "ls", "run/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha", out)

	dest := filepath.Join(dir, "pulled")
	out, err = run(t, cfg, "-n", addr, "pull", "run", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "pulled 2 files")

	got, err := os.ReadFile(filepath.Join(dest, "logs", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(got))

	_, err = run(t, cfg, "-n", addr, "ls", "missing")
	assert.Error(t, err)

	out, err = run(t, cfg, "-n", addr, "clear")
	require.NoError(t, err)
	assert.Equal(t, "Workspace cleared\n", out)
}

func TestNodesRegistry(t *testing.T) {
	t.Setenv(EnvNode, "")
	addr := startAgent(t)
	cfg := testConfig(t)

	u, err := url.Parse(addr)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	out, err := run(t, cfg, "nodes", "add", "gpu-1", host, "--port", port)
	require.NoError(t, err)
	assert.Contains(t, out, "added gpu-1")

	_, err = run(t, cfg, "nodes", "add", "gpu-1", host)
	assert.Error(t, err)

	out, err = run(t, cfg, "nodes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "gpu-1")
	assert.Contains(t, out, host+":"+port)

	// Registered names resolve to their address.
	out, err = run(t, cfg, "--node", "gpu-1", "health")
	require.NoError(t, err)
	assert.Equal(t, addr+" alive\n", out)

	out, err = run(t, cfg, "nodes", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "alive")
	assert.Contains(t, out, "7.0%")

	out, err = run(t, cfg, "nodes", "rm", "gpu-1")
	require.NoError(t, err)
	assert.Equal(t, "removed gpu-1\n", out)

	_, err = run(t, cfg, "nodes", "rm", "gpu-1")
	assert.Error(t, err)
}

func TestNodeRequired(t *testing.T) {
	t.Setenv(EnvNode, "")
	cfg := testConfig(t)

	_, err := run(t, cfg, "health")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no node given"))
}

func TestNodeFromEnvironment(t *testing.T) {
	addr := startAgent(t)
	cfg := testConfig(t)
	t.Setenv(EnvNode, addr)

	out, err := run(t, cfg, "health")
	require.NoError(t, err)
	assert.Equal(t, addr+" alive\n", out)
}
