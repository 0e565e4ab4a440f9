package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/log"
	"github.com/mattjoyce/nodeagent/internal/logring"
)

// process is one spawned child. exitCode and exitedAt are written by the
// reaper under Controller.mu.
type process struct {
	id      string
	command string
	cmd     *exec.Cmd
	started time.Time
	logger  *slog.Logger

	// done is closed once the child has been reaped.
	done     chan struct{}
	exitCode int
	exitedAt time.Time
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Controller owns the single job slot.
type Controller struct {
	cfg    Config
	sink   LogSink
	events events.Publisher
	logger *slog.Logger
	newID  func() string

	// runMu serializes Run so ring resets and slot replacement happen in
	// spawn order.
	runMu sync.Mutex

	mu      sync.Mutex
	current *process
	// live holds every child not yet reaped, including replaced ones.
	live map[*process]struct{}

	// wg tracks writer, reaper and kill-escalation goroutines.
	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewController creates a Controller that writes job output to sink.
// pub may be nil.
func NewController(cfg Config, sink LogSink, pub events.Publisher) *Controller {
	if strings.TrimSpace(cfg.Shell) == "" {
		cfg.Shell = defaultShell
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = defaultMaxLineBytes
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &Controller{
		cfg:    cfg,
		sink:   sink,
		events: pub,
		logger: log.WithComponent("job"),
		newID:  uuid.NewString,
		live:   make(map[*process]struct{}),
		stop:   make(chan struct{}),
	}
}

// Run starts command as the new active job and returns without waiting for
// it. Any previous job is replaced, not waited for.
func (c *Controller) Run(command string) (Snapshot, error) {
	if strings.TrimSpace(command) == "" {
		return Snapshot{}, ErrEmptyCommand
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	gen := c.sink.Reset()

	p, out, err := c.spawn(command)
	if err != nil {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		c.logger.Error("failed to spawn job", "cmd", command, "error", err)
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	c.mu.Lock()
	prev := c.current
	c.current = p
	c.live[p] = struct{}{}
	snap := snapshotLocked(p)
	c.mu.Unlock()

	c.wg.Add(2)
	go c.drain(p, out, gen)
	go c.reap(p)

	if prev != nil && !prev.exited() {
		p.logger.Warn("replacing a job that is still running", "previous_job_id", prev.id, "previous_pid", prev.cmd.Process.Pid)
	}
	p.logger.Info("job started", "cmd", command, "pid", snap.PID)
	c.events.Publish(events.JobStarted, map[string]any{
		"job_id": p.id,
		"cmd":    command,
		"pid":    snap.PID,
	})
	return snap, nil
}

func (c *Controller) spawn(command string) (*process, io.ReadCloser, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("create output pipe: %w", err)
	}

	cmd := exec.Command(c.cfg.Shell, "-c", command)
	cmd.Dir = c.cfg.Dir
	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, nil, err
	}
	// The child holds its own copy of the write end; ours must go so the
	// reader sees EOF once the child (and anything it spawned) exits.
	_ = pw.Close()

	id := c.newID()
	return &process{
		id:      id,
		command: command,
		cmd:     cmd,
		started: time.Now().UTC(),
		logger:  log.WithJob(id),
		done:    make(chan struct{}),
	}, pr, nil
}

// drain copies the child's output into the sink until the pipe closes.
func (c *Controller) drain(p *process, out io.ReadCloser, gen logring.Generation) {
	defer c.wg.Done()
	defer out.Close()

	reader := bufio.NewReaderSize(out, c.cfg.MaxLineBytes)
	lines, dropped := 0, 0
	for {
		chunk, _, err := reader.ReadLine()
		if len(chunk) > 0 || err == nil {
			if c.sink.Append(gen, strings.ToValidUTF8(string(chunk), "�")) {
				lines++
			} else {
				dropped++
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Warn("job output read failed", "error", err)
			}
			break
		}
	}
	p.logger.Debug("job output closed", "lines", lines, "dropped_stale", dropped)
}

// reap waits for the child and records how it ended.
func (c *Controller) reap(p *process) {
	defer c.wg.Done()

	err := p.cmd.Wait()
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.logger.Warn("wait for job failed", "error", err)
	}

	c.mu.Lock()
	p.exitCode = code
	p.exitedAt = time.Now().UTC()
	delete(c.live, p)
	c.mu.Unlock()
	close(p.done)

	p.logger.Info("job exited", "exit_code", code, "duration_ms", time.Since(p.started).Milliseconds())
	c.events.Publish(events.JobExited, map[string]any{
		"job_id":    p.id,
		"exit_code": code,
	})
}

// Interrupt signals the active job and clears the slot without waiting for
// the child to exit.
func (c *Controller) Interrupt() Outcome {
	c.mu.Lock()
	p := c.current
	c.current = nil
	c.mu.Unlock()

	if p == nil {
		return OutcomeNoProcess
	}

	if !p.exited() {
		if err := terminate(p.cmd); err != nil {
			p.logger.Warn("failed to send SIGTERM", "error", err)
		}
		if c.cfg.KillGrace > 0 {
			c.wg.Add(1)
			go c.escalate(p, c.cfg.KillGrace)
		}
	}

	p.logger.Info("job interrupted")
	c.events.Publish(events.JobInterrupted, map[string]any{"job_id": p.id})
	return OutcomeTerminated
}

// escalate sends SIGKILL if p is still alive after grace.
func (c *Controller) escalate(p *process, grace time.Duration) {
	defer c.wg.Done()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-c.stop:
	case <-timer.C:
		p.logger.Warn("job did not exit after SIGTERM, sending SIGKILL", "grace", grace)
		if err := kill(p.cmd); err != nil {
			p.logger.Error("failed to send SIGKILL", "error", err)
		}
	}
}

// Status returns a snapshot of the slot.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Snapshot{State: StateIdle}
	}
	return snapshotLocked(c.current)
}

func snapshotLocked(p *process) Snapshot {
	started := p.started
	snap := Snapshot{
		State:     StateRunning,
		ID:        p.id,
		Command:   p.command,
		PID:       p.cmd.Process.Pid,
		StartedAt: &started,
	}
	if !p.exitedAt.IsZero() {
		exited, code := p.exitedAt, p.exitCode
		snap.State = StateCompleted
		snap.ExitedAt = &exited
		snap.ExitCode = &code
	}
	return snap
}

// Shutdown terminates every child still alive, escalating to SIGKILL when
// ctx is done, and waits for all job goroutines. Run must not be called
// afterwards.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.once.Do(func() { close(c.stop) })

	c.mu.Lock()
	c.current = nil
	alive := make([]*process, 0, len(c.live))
	for p := range c.live {
		alive = append(alive, p)
	}
	c.mu.Unlock()

	for _, p := range alive {
		p.logger.Info("terminating job for shutdown")
		if err := terminate(p.cmd); err != nil {
			p.logger.Warn("failed to send SIGTERM", "error", err)
		}
	}
	for _, p := range alive {
		select {
		case <-p.done:
		case <-ctx.Done():
			if err := kill(p.cmd); err != nil {
				p.logger.Error("failed to send SIGKILL", "error", err)
			}
		}
	}

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
