package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var clockBase = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestDeterministicClock_FirstCallReturnsBase(t *testing.T) {
	clock := NewDeterministicClock(clockBase, time.Second)
	assert.Equal(t, clockBase, clock.Now())
	assert.Equal(t, int64(1), clock.Calls())
}

func TestDeterministicClock_Steps(t *testing.T) {
	clock := NewDeterministicClock(clockBase, time.Second)

	clock.Now()
	assert.Equal(t, clockBase.Add(time.Second), clock.Now())
	assert.Equal(t, clockBase.Add(2*time.Second), clock.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(clockBase, time.Minute)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, int64(0), clock.Calls())
	assert.Equal(t, clockBase, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(clockBase, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Time]bool)
	)
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine, "every call returns a distinct time")
}
