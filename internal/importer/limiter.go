package importer

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyRuns is returned by Start when every write slot is occupied.
// Review-phase operations are unaffected; only the write pipeline is capped.
var ErrTooManyRuns = errors.New("too many concurrent import runs, retry later")

// runLimiter caps how many runs may be in the write phase at once, protecting
// the database from a burst of simultaneous imports.
type runLimiter struct {
	slots chan struct{}

	mu     sync.Mutex
	active int
}

func newRunLimiter(max int) *runLimiter {
	if max <= 0 {
		max = 4
	}
	return &runLimiter{slots: make(chan struct{}, max)}
}

// tryAcquire claims a write slot without blocking.
func (l *runLimiter) tryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// release frees a slot. Must be called exactly once per successful acquire.
func (l *runLimiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

// activeRuns reports how many runs currently hold a slot.
func (l *runLimiter) activeRuns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// drain blocks until every active run finishes or the context expires. Used
// during shutdown so in-flight batches are not abandoned mid-write.
func (l *runLimiter) drain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.activeRuns() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
