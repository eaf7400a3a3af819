package utils

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeySetNoDuplicates(t *testing.T) {
	s := NewKeySet()

	assert.True(t, s.Add("building=North"), "first Add should return true")
	assert.False(t, s.Add("building=North"), "second Add of same key should return false")
	assert.True(t, s.Contains("building=North"))
	assert.False(t, s.Contains("building=South"))
	assert.Equal(t, 1, s.Size())
}

func TestKeySetConcurrency(t *testing.T) {
	s := NewKeySet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		pool.Submit(func() {
			if s.Add("same") {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	assert.Equal(t, int64(1), added)
}

func TestWorkerPoolSpacing(t *testing.T) {
	interval := 50 * time.Millisecond
	pool := NewWorkerPool(1, interval)

	var mu sync.Mutex
	var starts []time.Time
	for i := 0; i < 3; i++ {
		pool.Submit(func() {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		})
	}
	pool.Wait()

	assert.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqualf(t, gap, interval-5*time.Millisecond, "gap between job %d and %d", i-1, i)
	}
}
