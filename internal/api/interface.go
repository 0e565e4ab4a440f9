package api

import (
	"context"
	"io"

	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
	"github.com/mattjoyce/nodeagent/internal/workspace"
)

//go:generate mockgen -destination=mocks/mock_api.go -package=mocks github.com/mattjoyce/nodeagent/internal/api JobRunner,LogReader,Workspace,UsageSampler

// JobRunner is the single job slot.
type JobRunner interface {
	Run(command string) (job.Snapshot, error)
	Interrupt() job.Outcome
	Status() job.Snapshot
}

// LogReader reads the most recent job output.
type LogReader interface {
	Tail(n int) []string
}

// Workspace mutates and reads the workspace directory.
type Workspace interface {
	Clear(ctx context.Context) error
	DeployArchive(ctx context.Context, r io.Reader) (workspace.Deployment, error)
	List(ctx context.Context, rel string) (workspace.Listing, error)
}

// UsageSampler reports host utilization.
type UsageSampler interface {
	Usage(ctx context.Context) (sysstat.Usage, error)
}

// EventStream publishes agent events and serves them to SSE clients.
type EventStream interface {
	events.Publisher
	Subscribe() (<-chan events.Event, func())
	SnapshotSince(lastID int64) []events.Event
}

var (
	_ JobRunner    = (*job.Controller)(nil)
	_ UsageSampler = (*sysstat.HostSampler)(nil)
	_ EventStream  = (*events.Hub)(nil)
)
