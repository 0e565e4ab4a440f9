// Package sysstat samples host CPU and memory utilization.
package sysstat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// ErrUnavailable is returned when the host metrics cannot be read.
var ErrUnavailable = errors.New("resource metrics unavailable")

// DefaultWindow is how long CPU time is observed to compute a rate.
const DefaultWindow = time.Second

// Usage is a point-in-time utilization reading, both in percent.
type Usage struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
}

// Sampler reads host utilization.
type Sampler interface {
	Usage(ctx context.Context) (Usage, error)
}

// HostSampler reads utilization of the whole host through gopsutil.
type HostSampler struct {
	window time.Duration

	cpuPercent func(ctx context.Context, window time.Duration) (float64, error)
	memPercent func(ctx context.Context) (float64, error)
}

var _ Sampler = (*HostSampler)(nil)

// NewHostSampler returns a sampler that blocks for window on every call.
// A non-positive window falls back to DefaultWindow.
func NewHostSampler(window time.Duration) *HostSampler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &HostSampler{
		window:     window,
		cpuPercent: hostCPUPercent,
		memPercent: hostMemPercent,
	}
}

// Window reports the CPU sampling window.
func (s *HostSampler) Window() time.Duration { return s.window }

// Usage samples CPU over the window, then reads memory. It returns early
// with ctx's error if ctx is done while sampling.
func (s *HostSampler) Usage(ctx context.Context) (Usage, error) {
	cpuPct, err := s.cpuPercent(ctx, s.window)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Usage{}, ctxErr
		}
		return Usage{}, fmt.Errorf("%w: cpu: %v", ErrUnavailable, err)
	}

	memPct, err := s.memPercent(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: memory: %v", ErrUnavailable, err)
	}

	return Usage{CPU: cpuPct, Memory: memPct}, nil
}

func hostCPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("no cpu samples")
	}
	return pcts[0], nil
}

func hostMemPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
