package status

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Tracker holds the last-seen ControllerStatus plus a monotonically
// increasing freshness stamp, per spec §3. Invariant 5 (Idle suppresses
// console logging but never suppresses state updates) is implemented here:
// Update always applies, but only logs above Debug for non-Idle states.
type Tracker struct {
	mu        sync.Mutex
	cond      *sync.Cond
	current   ControllerStatus
	freshness uint64
	log       *logrus.Entry
}

// NewTracker returns an empty Tracker. log may be nil to use the standard
// logger.
func NewTracker(log *logrus.Entry) *Tracker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Tracker{log: log.WithField("component", "status")}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Update applies a freshly parsed report and returns the new freshness
// stamp.
func (t *Tracker) Update(s ControllerStatus) uint64 {
	t.mu.Lock()
	t.current = s
	t.freshness++
	stamp := t.freshness
	t.cond.Broadcast()
	t.mu.Unlock()

	if s.State == "Idle" {
		t.log.WithField("freshness", stamp).Debug("status report")
	} else {
		t.log.WithFields(logrus.Fields{"freshness": stamp, "state": s.State}).Info("status report")
	}
	return stamp
}

// Current returns the last-seen status and its freshness stamp.
func (t *Tracker) Current() (ControllerStatus, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.freshness
}

// Wait blocks until the freshness stamp advances past since, ctx is
// canceled, or ctx's deadline elapses, whichever comes first. It backs the
// macro executor's %wait and %update cooperative suspension (spec §9).
func (t *Tracker) Wait(ctx context.Context, since uint64) (ControllerStatus, uint64, error) {
	t.mu.Lock()
	if t.freshness > since {
		s, f := t.current, t.freshness
		t.mu.Unlock()
		return s, f, nil
	}
	t.mu.Unlock()

	// cond.Wait has no context awareness, so a watcher goroutine translates
	// ctx cancellation into a broadcast. It exits on its own once ctx fires;
	// callers are expected to bound ctx (macro %wait's 30s cap) rather than
	// pass context.Background().
	go func() {
		<-ctx.Done()
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	}()

	t.mu.Lock()
	for t.freshness <= since && ctx.Err() == nil {
		t.cond.Wait()
	}
	s, f, err := t.current, t.freshness, ctx.Err()
	t.mu.Unlock()
	if err != nil {
		return ControllerStatus{}, since, err
	}
	return s, f, nil
}
