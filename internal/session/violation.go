package session

import (
	"context"
	"sync"
	"time"
)

// Violation is an integrity event reported by the external lockdown monitor.
type Violation struct {
	Kind       string
	OccurredAt time.Time
}

// ViolationReactor shows a transient exit warning for each reported violation.
// It never touches navigation, answers or the countdown, so a misbehaving monitor
// cannot corrupt exam progress or trigger a submission.
type ViolationReactor struct {
	mu         sync.Mutex
	visible    bool
	generation uint64
	count      int

	displayFor time.Duration
	completed  func() bool
	announce   func(string)
	record     func(Violation)
	wg         *sync.WaitGroup
}

// NewViolationReactor creates a reactor. completed reports whether the session is
// finished; record receives every accepted violation and may be nil.
func NewViolationReactor(displayFor time.Duration, completed func() bool, announce func(string), record func(Violation), wg *sync.WaitGroup) *ViolationReactor {
	if record == nil {
		record = func(Violation) {}
	}
	if wg == nil {
		wg = &sync.WaitGroup{}
	}
	return &ViolationReactor{
		displayFor: displayFor,
		completed:  completed,
		announce:   announce,
		record:     record,
		wg:         wg,
	}
}

// React handles one violation. It is a no-op once the session is completed.
// The warning is cleared after the display interval unless ctx is cancelled first;
// a newer violation restarts the interval.
func (r *ViolationReactor) React(ctx context.Context, kind string) bool {
	if r.completed() {
		return false
	}

	r.mu.Lock()
	r.visible = true
	r.count++
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	r.announce(msgExitWarning)
	r.record(Violation{Kind: kind, OccurredAt: time.Now()})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(r.displayFor)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
			r.mu.Lock()
			if r.generation == gen {
				r.visible = false
			}
			r.mu.Unlock()
		}
	}()
	return true
}

// Restore carries over the count of an earlier connection to the same exam.
func (r *ViolationReactor) Restore(count int) {
	r.mu.Lock()
	r.count = max(r.count, count)
	r.mu.Unlock()
}

// WarningVisible reports whether the exit warning is showing.
func (r *ViolationReactor) WarningVisible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// Count returns the number of accepted violations.
func (r *ViolationReactor) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
