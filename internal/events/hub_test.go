package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(JobStarted, map[string]any{"cmd": "echo hi"})

	select {
	case ev := <-ch:
		assert.Equal(t, JobStarted, ev.Type)
		assert.Equal(t, int64(1), ev.ID)
		var data map[string]string
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, "echo hi", data["cmd"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSnapshotSinceWrapsRing(t *testing.T) {
	h := NewHub(3)
	for range 5 {
		h.Publish(JobExited, nil)
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(5), all[2].ID)
	assert.JSONEq(t, `{}`, string(all[0].Data))

	later := h.SnapshotSince(4)
	require.Len(t, later, 1)
	assert.Equal(t, int64(5), later[0].ID)
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after cancel must not panic.
	h.Publish(WorkspaceCleared, nil)
}

func TestCloseDisconnectsSubscribers(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)

	h.Publish(JobStarted, nil)
	assert.Empty(t, h.SnapshotSince(0))

	late, lateCancel := h.Subscribe()
	defer lateCancel()
	_, ok = <-late
	assert.False(t, ok)
}
