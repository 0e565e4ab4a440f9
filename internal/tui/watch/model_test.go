package watch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/nodeclient"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
)

type fakeSource struct {
	healthErr error
	usageErr  error
	snap      job.Snapshot
	logs      string
	gotLines  int
	stream    string
}

func (f *fakeSource) BaseURL() string { return "http://node-a:30081" }

func (f *fakeSource) Health(context.Context) (sysstat.Health, error) {
	return sysstat.Alive, f.healthErr
}

func (f *fakeSource) Status(context.Context) (job.Snapshot, error) { return f.snap, nil }

func (f *fakeSource) Logs(_ context.Context, lines int) (string, error) {
	f.gotLines = lines
	return f.logs, nil
}

func (f *fakeSource) ResourceUsage(context.Context) (sysstat.Usage, error) {
	if f.usageErr != nil {
		return sysstat.Usage{}, f.usageErr
	}
	return sysstat.Usage{CPU: 42, Memory: 90}, nil
}

func (f *fakeSource) Do(context.Context, nodeclient.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(f.stream)),
	}, nil
}

func TestPollCollectsEverything(t *testing.T) {
	code := 0
	src := &fakeSource{
		snap: job.Snapshot{State: job.StateCompleted, ID: "0123456789", Command: "python main.py", ExitCode: &code},
		logs: "epoch 1\nepoch 2",
	}

	msg := poll(src, 25)().(pollMsg)
	require.NoError(t, msg.Err)
	assert.Equal(t, 25, src.gotLines)
	assert.Equal(t, "epoch 1\nepoch 2", msg.Logs)
	require.NotNil(t, msg.Usage)
	assert.Equal(t, 42.0, msg.Usage.CPU)
	assert.Equal(t, job.StateCompleted, msg.Status.State)
}

func TestPollToleratesMissingUsage(t *testing.T) {
	src := &fakeSource{usageErr: sysstat.ErrUnavailable}

	msg := poll(src, 10)().(pollMsg)
	require.NoError(t, msg.Err)
	assert.Nil(t, msg.Usage)
}

func TestPollReportsUnreachableNode(t *testing.T) {
	src := &fakeSource{healthErr: errors.New("connection refused")}

	msg := poll(src, 10)().(pollMsg)
	assert.EqualError(t, msg.Err, "connection refused")
}

func TestReadSSE(t *testing.T) {
	stream := ": keep-alive\n\n" +
		"id: 3\nevent: job.started\ndata: {\"job_id\":\"abc\",\"cmd\":\"sleep 1\"}\n\n" +
		"id: 4\nevent: job.exited\ndata: {\"job_id\":\"abc\",\"exit_code\":0}\n\n"

	ch := make(chan events.Event, 4)
	require.NoError(t, readSSE(bufio.NewScanner(strings.NewReader(stream)), ch))
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, events.JobStarted, got[0].Type)
	assert.Equal(t, "[abc] sleep 1", describeEvent(got[0]))
	assert.Equal(t, "[abc] exit=0", describeEvent(got[1]))
}

func TestUpdateRendersPoll(t *testing.T) {
	code := 3
	src := &fakeSource{}
	m := New(src, Options{PollInterval: time.Hour})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, cmd := next.Update(pollMsg{
		Health: sysstat.Alive,
		Status: job.Snapshot{State: job.StateCompleted, ID: "feedbeefcafe", Command: "python main.py", ExitCode: &code},
		Logs:   "loss=0.25",
		Usage:  &sysstat.Usage{CPU: 12, Memory: 34},
		At:     time.Now(),
	})
	assert.NotNil(t, cmd)

	view := next.(Model).View()
	assert.Contains(t, view, "ALIVE")
	assert.Contains(t, view, "EXITED 3")
	assert.Contains(t, view, "[feedbeef]")
	assert.Contains(t, view, "loss=0.25")
	assert.Contains(t, view, "CPU")
}

func TestUpdateMarksNodeUnreachable(t *testing.T) {
	m := New(&fakeSource{}, Options{})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, _ = next.Update(pollMsg{Err: errors.New("dial tcp: refused"), At: time.Now()})

	view := next.(Model).View()
	assert.Contains(t, view, "UNREACHABLE")
	assert.Contains(t, view, "dial tcp: refused")
}

func TestUpdateTracksEvents(t *testing.T) {
	m := New(&fakeSource{}, Options{})

	next, cmd := m.Update(eventMsg(events.Event{ID: 7, Type: events.WorkspaceCleared, Data: []byte("{}"), At: time.Now()}))
	assert.NotNil(t, cmd)
	model := next.(Model)
	assert.Equal(t, int64(7), model.lastID)
	require.Len(t, model.eventLog, 1)
	assert.False(t, model.activity.LastEvent().IsZero())
}

func TestQuitKey(t *testing.T) {
	m := New(&fakeSource{}, Options{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestGauge(t *testing.T) {
	theme := NewDefaultTheme()
	assert.Contains(t, renderGauge("CPU", 50, 10, theme), " 50.0%")
	assert.Contains(t, renderGauge("MEM", 150, 10, theme), "150.0%")
}
