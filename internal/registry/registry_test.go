package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nodes.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestAddListRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b, err := s.Add(ctx, Node{Name: "gpu-b", Host: "10.0.0.12"})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, DefaultPort, b.Port)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), b.CreatedAt)

	a, err := s.Add(ctx, Node{Name: " gpu-a ", Host: "10.0.0.11", Port: 31000})
	require.NoError(t, err)
	assert.Equal(t, "gpu-a", a.Name)

	nodes, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, a, nodes[0])
	assert.Equal(t, b, nodes[1])

	got, err := s.Get(ctx, "gpu-a")
	require.NoError(t, err)
	assert.Equal(t, 31000, got.Port)

	require.NoError(t, s.Remove(ctx, "gpu-a"))
	_, err = s.Get(ctx, "gpu-a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, "gpu-a"), ErrNotFound)

	nodes, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Node{b}, nodes)
}

func TestAddDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, Node{Name: "edge", Host: "10.0.0.1"})
	require.NoError(t, err)
	_, err = s.Add(ctx, Node{Name: "edge", Host: "10.0.0.2"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAddInvalid(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, n := range []Node{
		{Host: "10.0.0.1"},
		{Name: "a b", Host: "10.0.0.1"},
		{Name: "x/y", Host: "10.0.0.1"},
		{Name: "ok"},
		{Name: "ok", Host: "10.0.0.1", Port: 70000},
		{Name: "ok", Host: "10.0.0.1", Port: -1},
	} {
		_, err := s.Add(ctx, n)
		assert.ErrorIs(t, err, ErrInvalid, "node %+v", n)
	}
}

func TestListEmpty(t *testing.T) {
	s := openTestStore(t)
	nodes, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)
}

func TestCustomDefaultPort(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nodes.db"), 32000)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Add(context.Background(), Node{Name: "n1", Host: "h"})
	require.NoError(t, err)
	assert.Equal(t, 32000, n.Port)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.db")
	ctx := context.Background()

	s, err := Open(ctx, path, 0)
	require.NoError(t, err)
	_, err = s.Add(ctx, Node{Name: "n1", Host: "h"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, 0)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "h", got.Host)
}
