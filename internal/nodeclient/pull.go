package nodeclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultPullConcurrency bounds parallel file downloads in Pull.
const DefaultPullConcurrency = 4

// PullStats summarizes a Pull.
type PullStats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Pull copies the workspace path rel from the node to dest on local disk,
// descending into directories. Directories are walked first, then files are
// downloaded concurrently.
func (c *Client) Pull(ctx context.Context, rel, dest string, concurrency int) (PullStats, error) {
	if concurrency <= 0 {
		concurrency = DefaultPullConcurrency
	}

	var stats PullStats
	files, err := c.walk(ctx, rel, dest, &stats)
	if err != nil {
		return stats, err
	}

	var bytes atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, f := range files {
		g.Go(func() error {
			n, err := c.download(gctx, f.remote, f.local)
			if err != nil {
				return fmt.Errorf("pull %q: %w", f.remote, err)
			}
			bytes.Add(n)
			return nil
		})
	}
	err = g.Wait()

	stats.Files = len(files)
	stats.Bytes = bytes.Load()
	c.logger.Info("pull finished", "path", rel, "dest", dest, "files", stats.Files, "dirs", stats.Dirs, "bytes", stats.Bytes, "error", err)
	return stats, err
}

type pullFile struct {
	remote string
	local  string
}

// walk creates the local directory tree breadth first and returns every file
// still to download. The root of a file pull is itself returned as a file.
func (c *Client) walk(ctx context.Context, rel, dest string, stats *PullStats) ([]pullFile, error) {
	type dir struct{ remote, local string }

	var files []pullFile
	queue := []dir{{remote: rel, local: dest}}
	first := true

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		entry, err := c.List(ctx, d.remote)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", d.remote, err)
		}
		if !entry.IsDir {
			entry.Body.Close()
			if !first {
				// Only reachable if the tree changed under us.
				return nil, fmt.Errorf("list %q: expected a directory", d.remote)
			}
			return []pullFile{{remote: d.remote, local: d.local}}, nil
		}
		first = false

		if err := os.MkdirAll(d.local, 0o755); err != nil {
			return nil, err
		}
		stats.Dirs++

		for _, name := range entry.Files {
			if !safeName(name) {
				return nil, fmt.Errorf("list %q: refusing entry name %q", d.remote, name)
			}
			remote := path.Join(d.remote, name)
			local := filepath.Join(d.local, name)

			child, err := c.List(ctx, remote)
			if err != nil {
				return nil, fmt.Errorf("list %q: %w", remote, err)
			}
			if child.IsDir {
				queue = append(queue, dir{remote: remote, local: local})
				continue
			}
			child.Body.Close()
			files = append(files, pullFile{remote: remote, local: local})
		}
	}
	return files, nil
}

func safeName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// download writes one remote file to local through a temp file in the same
// directory.
func (c *Client) download(ctx context.Context, remote, local string) (int64, error) {
	entry, err := c.List(ctx, remote)
	if err != nil {
		return 0, err
	}
	if entry.IsDir {
		return 0, fmt.Errorf("expected a file")
	}
	defer entry.Body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".pull-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, entry.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), local)
}
