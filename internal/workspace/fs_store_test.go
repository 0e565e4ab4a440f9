package workspace

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func newTestStore(t *testing.T) *fsStore {
	t.Helper()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "workspace"), nil)
	require.NoError(t, err)
	return s
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func listNames(t *testing.T, s *fsStore, rel string) []string {
	t.Helper()
	l, err := s.List(context.Background(), rel)
	require.NoError(t, err)
	require.True(t, l.IsDir(), "expected %q to be a directory", rel)
	return l.Files
}

func TestNewFSStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	s, err := NewFSStore(root, nil)
	require.NoError(t, err)

	info, err := os.Stat(s.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewFSStore("  ", nil)
	assert.Error(t, err)
}

func TestClearKeepsAllowList(t *testing.T) {
	s := newTestStore(t)
	root := s.Root()

	writeFile(t, filepath.Join(root, "main.py"), "print('hi')")
	writeFile(t, filepath.Join(root, "requirements.txt"), "torch")
	writeFile(t, filepath.Join(root, "data", "mnist.bin"), "x")
	writeFile(t, filepath.Join(root, "model", "mnist_cnn.pth"), "weights")
	writeFile(t, filepath.Join(root, "train.log"), "epoch 1")

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, []string{"data", "main.py", "requirements.txt"}, listNames(t, s, ""))
	assert.Equal(t, []string{"mnist.bin"}, listNames(t, s, "data"))

	// Idempotent on an already minimal root.
	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, []string{"data", "main.py", "requirements.txt"}, listNames(t, s, ""))
}

func TestClearCustomKeep(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), []string{"datasets", " "})
	require.NoError(t, err)
	writeFile(t, filepath.Join(s.Root(), "datasets", "a"), "1")
	writeFile(t, filepath.Join(s.Root(), "main.py"), "2")

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, []string{"datasets"}, listNames(t, s, ""))
}

func TestClearRecreatesMissingRoot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.RemoveAll(s.Root()))

	require.NoError(t, s.Clear(context.Background()))
	assert.Empty(t, listNames(t, s, ""))
}

func TestDeployArchive(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, filepath.Join(s.Root(), "stale.txt"), "old")
	writeFile(t, filepath.Join(s.Root(), "main.py"), "keep me")

	payload := buildZip(t, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "bravo",
	})

	dep, err := s.DeployArchive(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)

	sum := blake3.Sum256(payload)
	assert.Equal(t, 2, dep.Files)
	assert.Equal(t, int64(len(payload)), dep.Bytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), dep.Digest)

	// The temporary archive is gone and the stale file was cleared.
	assert.Equal(t, []string{"a.txt", "main.py", "sub"}, listNames(t, s, ""))
	assert.Equal(t, []string{"b.txt"}, listNames(t, s, "sub"))

	l, err := s.List(context.Background(), "a.txt")
	require.NoError(t, err)
	defer l.Close()
	assert.False(t, l.IsDir())
	got, err := l.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))
	assert.Equal(t, int64(5), l.Size)
	assert.Contains(t, l.ContentType, "text/plain")
}

func TestDeployArchiveNestedModel(t *testing.T) {
	s := newTestStore(t)
	payload := buildZip(t, map[string]string{"model/weights.bin": "\x00\x01\x02"})

	_, err := s.DeployArchive(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"weights.bin"}, listNames(t, s, "model"))
}

func TestDeployArchiveInvalidPayload(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DeployArchive(context.Background(), bytes.NewReader([]byte("definitely not a zip")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchive)

	// Nothing but the (empty) root remains; the temporary file was removed.
	assert.Empty(t, listNames(t, s, ""))
}

func TestDeployArchiveRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	payload := buildZip(t, map[string]string{"../escape.txt": "nope"})

	_, err := s.DeployArchive(context.Background(), bytes.NewReader(payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchive)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(s.Root()), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestListNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.List(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRejectsEscapes(t *testing.T) {
	parent := t.TempDir()
	writeFile(t, filepath.Join(parent, "secret"), "top secret")

	s, err := NewFSStore(filepath.Join(parent, "ws"), nil)
	require.NoError(t, err)

	for _, rel := range []string{"../secret", "sub/../../secret", "/etc/passwd", filepath.Join(parent, "secret")} {
		_, err := s.List(context.Background(), rel)
		assert.ErrorIs(t, err, ErrNotFound, "path %q", rel)
	}
}

func TestListRejectsSymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	writeFile(t, filepath.Join(parent, "secret"), "top secret")

	s, err := NewFSStore(filepath.Join(parent, "ws"), nil)
	require.NoError(t, err)
	require.NoError(t, os.Symlink(filepath.Join(parent, "secret"), filepath.Join(s.Root(), "link")))

	_, err = s.List(context.Background(), "link")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDotResolvesToRoot(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, filepath.Join(s.Root(), "x"), "1")

	assert.Equal(t, []string{"x"}, listNames(t, s, "."))
	assert.Equal(t, []string{"x"}, listNames(t, s, "sub/.."))
}

func TestListCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
