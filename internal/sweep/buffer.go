package sweep

import (
	"slices"
	"sync"
)

// ResultBuffer is the hand-off between workers and the coordinator. Every
// publish wakes the coordinator through a single-slot channel.
type ResultBuffer struct {
	mu        sync.Mutex
	pending   []ResultRecord
	failures  []Failure
	published int

	notify chan struct{}
}

func NewResultBuffer() *ResultBuffer {
	return &ResultBuffer{notify: make(chan struct{}, 1)}
}

// Publish appends a finished record.
func (b *ResultBuffer) Publish(r ResultRecord) {
	b.mu.Lock()
	b.pending = append(b.pending, r)
	b.published++
	b.mu.Unlock()
	b.signal()
}

// Fail records a parameter set that produced no result. It counts as
// published so the coordinator knows the set is settled.
func (b *ResultBuffer) Fail(f Failure) {
	b.mu.Lock()
	b.failures = append(b.failures, f)
	b.published++
	b.mu.Unlock()
	b.signal()
}

func (b *ResultBuffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Notify fires at least once after any number of publishes.
func (b *ResultBuffer) Notify() <-chan struct{} {
	return b.notify
}

func (b *ResultBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Published counts results and failures since creation.
func (b *ResultBuffer) Published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// Drain removes and returns up to n of the oldest pending records; n <= 0
// drains everything.
func (b *ResultBuffer) Drain(n int) []ResultRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.pending) {
		n = len(b.pending)
	}
	out := slices.Clone(b.pending[:n])
	b.pending = slices.Delete(b.pending, 0, n)
	return out
}

// PendingIDs lists the ids still waiting to be persisted.
func (b *ResultBuffer) PendingIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int64, 0, len(b.pending))
	for _, r := range b.pending {
		ids = append(ids, r.ID)
	}
	return ids
}

func (b *ResultBuffer) Failures() []Failure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.failures)
}
