// Package logring holds the captured output of the active job.
//
// A Ring is a fixed-capacity sequence of text lines. Writers append lines
// tagged with the generation they were started under; Reset begins a new
// generation, so appends from a writer belonging to an earlier job are
// dropped instead of interleaving with the new job's output.
package logring

import "sync"

// DefaultCapacity is the number of lines retained when none is configured.
const DefaultCapacity = 1000

// Generation identifies one reset epoch of a Ring.
type Generation uint64

// Ring is a bounded, overwrite-oldest line buffer safe for one writer and
// many concurrent readers.
type Ring struct {
	mu    sync.Mutex
	lines []string
	start int
	size  int
	gen   Generation
}

// New creates a Ring holding at most capacity lines.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{lines: make([]string, capacity)}
}

// Reset empties the ring and starts a new generation, returning it.
// Writers must append with the returned token.
func (r *Ring) Reset() Generation {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.lines)
	r.start = 0
	r.size = 0
	r.gen++
	return r.gen
}

// Append adds line if gen is the current generation. It reports whether the
// line was stored.
func (r *Ring) Append(gen Generation, line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		return false
	}

	capacity := len(r.lines)
	if r.size < capacity {
		r.lines[(r.start+r.size)%capacity] = line
		r.size++
		return true
	}

	// Overwrite oldest.
	r.lines[r.start] = line
	r.start = (r.start + 1) % capacity
	return true
}

// Tail returns the last min(n, Len()) lines, oldest first.
func (r *Ring) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || r.size == 0 {
		return []string{}
	}
	if n > r.size {
		n = r.size
	}

	out := make([]string, n)
	first := r.size - n
	for i := range n {
		out[i] = r.lines[(r.start+first+i)%len(r.lines)]
	}
	return out
}

// Len returns the number of lines currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.lines)
}

// Current returns the active generation.
func (r *Ring) Current() Generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}
