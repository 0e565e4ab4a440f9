package gateway

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/nodeagent/internal/nodeclient"
	"github.com/mattjoyce/nodeagent/internal/registry"
)

// handleFleetStatus handles GET /fleet/status: every registered node is
// probed for health and usage, at most FleetConcurrency at a time.
func (s *Server) handleFleetStatus(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list nodes", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	respondJSON(w, http.StatusOK, FleetResponse{Nodes: ProbeFleet(r.Context(), nodes, s.config.FleetConcurrency, s.clientOpts...)})
}

// ProbeFleet checks health and usage of every node, at most concurrency at a
// time. It never fails as a whole; each node's error lands in its row.
func ProbeFleet(ctx context.Context, nodes []registry.Node, concurrency int, opts ...nodeclient.Option) []NodeHealth {
	out := make([]NodeHealth, len(nodes))
	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, n := range nodes {
		g.Go(func() error {
			out[i] = probe(ctx, n, opts)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func probe(ctx context.Context, n registry.Node, opts []nodeclient.Option) NodeHealth {
	row := NodeHealth{Node: n}
	c, err := nodeclient.ForNode(n.Host, n.Port, opts...)
	if err != nil {
		row.Error = err.Error()
		return row
	}
	if _, err := c.Health(ctx); err != nil {
		row.Error = err.Error()
		return row
	}
	row.Reachable = true

	u, err := c.ResourceUsage(ctx)
	if err != nil {
		row.Error = err.Error()
		return row
	}
	row.Usage = &u
	return row
}
