package logring

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, DefaultCapacity, New(-3).Cap())
	assert.Equal(t, 5, New(5).Cap())
}

func TestTailBounds(t *testing.T) {
	r := New(4)
	gen := r.Reset()

	assert.Empty(t, r.Tail(10))

	for i := range 3 {
		require.True(t, r.Append(gen, fmt.Sprintf("line-%d", i)))
	}

	assert.Equal(t, []string{"line-0", "line-1", "line-2"}, r.Tail(10))
	assert.Equal(t, []string{"line-1", "line-2"}, r.Tail(2))
	assert.Empty(t, r.Tail(0))
	assert.Empty(t, r.Tail(-1))
}

func TestAppendEvictsOldest(t *testing.T) {
	r := New(3)
	gen := r.Reset()
	for i := range 7 {
		r.Append(gen, fmt.Sprintf("%d", i))
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"4", "5", "6"}, r.Tail(100))
	assert.Equal(t, []string{"6"}, r.Tail(1))
}

func TestTailPrefixConsistent(t *testing.T) {
	r := New(10)
	gen := r.Reset()
	for i := range 25 {
		r.Append(gen, fmt.Sprintf("%d", i))
	}

	full := r.Tail(10)
	for n := 1; n <= 10; n++ {
		got := r.Tail(n)
		assert.Len(t, got, n)
		assert.Equal(t, full[len(full)-n:], got, "tail(%d) must be a suffix of tail(10)", n)
	}
}

func TestResetDiscardsContent(t *testing.T) {
	r := New(5)
	gen := r.Reset()
	r.Append(gen, "old")

	next := r.Reset()
	assert.NotEqual(t, gen, next)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Tail(5))
	assert.Equal(t, next, r.Current())
}

func TestStaleGenerationDropped(t *testing.T) {
	r := New(5)
	first := r.Reset()
	r.Append(first, "first job")

	second := r.Reset()
	assert.False(t, r.Append(first, "late line from first job"))
	assert.True(t, r.Append(second, "second job"))

	assert.Equal(t, []string{"second job"}, r.Tail(5))
}

func TestConcurrentWritersAcrossReset(t *testing.T) {
	r := New(1000)
	stale := r.Reset()
	fresh := r.Reset()

	var writers sync.WaitGroup
	for _, g := range []Generation{stale, fresh} {
		writers.Add(1)
		go func(g Generation) {
			defer writers.Done()
			for i := range 200 {
				r.Append(g, fmt.Sprintf("gen%d-%d", g, i))
			}
		}(g)
	}

	stop := make(chan struct{})
	var reader sync.WaitGroup
	reader.Add(1)
	go func() {
		defer reader.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Tail(50)
			}
		}
	}()

	writers.Wait()
	close(stop)
	reader.Wait()

	lines := r.Tail(1000)
	require.Len(t, lines, 200)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("gen%d-%d", fresh, i), line)
	}
}
