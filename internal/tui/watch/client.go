package watch

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/nodeclient"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
)

// Source is the node the view reads from. *nodeclient.Client implements it.
type Source interface {
	BaseURL() string
	Health(ctx context.Context) (sysstat.Health, error)
	Status(ctx context.Context) (job.Snapshot, error)
	Logs(ctx context.Context, lines int) (string, error)
	ResourceUsage(ctx context.Context) (sysstat.Usage, error)
	Do(ctx context.Context, req nodeclient.Request) (*http.Response, error)
}

var _ Source = (*nodeclient.Client)(nil)

// --- Message types ---

type eventMsg events.Event

// pollMsg carries one round of polling. Usage is nil when the node could not
// sample it; that alone does not mark the node as down.
type pollMsg struct {
	Health sysstat.Health
	Status job.Snapshot
	Logs   string
	Usage  *sysstat.Usage
	Err    error
	At     time.Time
}

type tickMsg time.Time

type sseDisconnectedMsg struct{ err error }
type reconnectMsg struct{}

// --- Commands ---

// poll fetches health first, then status, logs and usage concurrently.
func poll(src Source, lines int) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		msg := pollMsg{At: time.Now()}

		h, err := src.Health(ctx)
		if err != nil {
			msg.Err = err
			return msg
		}
		msg.Health = h

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			msg.Status, err = src.Status(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			msg.Logs, err = src.Logs(gctx, lines)
			return err
		})
		g.Go(func() error {
			if u, err := src.ResourceUsage(gctx); err == nil {
				msg.Usage = &u
			}
			return nil
		})
		msg.Err = g.Wait()
		return msg
	}
}

// subscribeToEvents reads the node's /events/ stream into ch until it drops,
// then reports sseDisconnectedMsg. Events after since are replayed by the
// node on reconnect.
func subscribeToEvents(src Source, since int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		hdr := http.Header{}
		if since > 0 {
			hdr.Set("Last-Event-ID", strconv.FormatInt(since, 10))
		}
		resp, err := src.Do(context.Background(), nodeclient.Request{
			Method: http.MethodGet,
			Path:   "/events/",
			Header: hdr,
		})
		if err != nil {
			return sseDisconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{err: fmt.Errorf("event stream returned %d", resp.StatusCode)}
		}

		err = readSSE(bufio.NewScanner(resp.Body), ch)
		return sseDisconnectedMsg{err: err}
	}
}

// readSSE parses id/event/data frames. Comment lines are keep-alives.
func readSSE(scanner *bufio.Scanner, ch chan<- events.Event) error {
	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Data != nil {
				cur.At = time.Now()
				ch <- cur
			}
			cur = events.Event{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = []byte(line[6:])
		}
	}
	return scanner.Err()
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}
