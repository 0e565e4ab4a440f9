package job

import (
	"errors"
	"time"

	"github.com/mattjoyce/nodeagent/internal/logring"
)

var (
	// ErrSpawn is returned when the child process could not be started.
	ErrSpawn = errors.New("spawn failed")

	// ErrEmptyCommand is returned by Run for a blank command line.
	ErrEmptyCommand = errors.New("command is empty")
)

// State is the controller's view of its slot.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// Outcome reports what Interrupt did.
type Outcome string

const (
	OutcomeTerminated Outcome = "terminated"
	OutcomeNoProcess  Outcome = "no process"
)

// Snapshot is a point-in-time view of the slot.
type Snapshot struct {
	State     State      `json:"state"`
	ID        string     `json:"job_id,omitempty"`
	Command   string     `json:"cmd,omitempty"`
	PID       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	// ExitCode is -1 when the child was killed by a signal.
	ExitCode *int `json:"exit_code,omitempty"`
}

// LogSink receives the child's output. *logring.Ring implements it.
type LogSink interface {
	Reset() logring.Generation
	Append(gen logring.Generation, line string) bool
}

var _ LogSink = (*logring.Ring)(nil)

// Config configures a Controller.
type Config struct {
	// Dir is the working directory of every job.
	Dir string
	// Shell runs the command line as `Shell -c <command>`.
	Shell string
	// KillGrace, when positive, escalates an interrupt to SIGKILL if the
	// child outlives it.
	KillGrace time.Duration
	// MaxLineBytes splits longer output lines into several ring entries.
	MaxLineBytes int
}

const (
	defaultShell        = "/bin/sh"
	defaultMaxLineBytes = 64 * 1024
)
