// Package status aggregates the sync engine's observable state into one
// snapshot for UIs and the CLI.
package status

import (
	"context"
	"sync"
	"time"
)

// Mode describes how sync runs are being triggered.
type Mode string

const (
	ModeAutomatic Mode = "AUTOMATIC"
	ModeManual    Mode = "MANUAL"
)

// LastSync records the outcome of the most recent completed run.
type LastSync struct {
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Snapshot is the externally visible sync state at one instant.
type Snapshot struct {
	Pending   int       `json:"pending"`
	Conflicts int       `json:"conflicts"`
	Online    bool      `json:"online"`
	Mode      Mode      `json:"mode"`
	LastSync  *LastSync `json:"last_sync,omitempty"`
	IsSyncing bool      `json:"is_syncing"`
}

// Counter supplies queue depth figures. *queue.Store satisfies it.
type Counter interface {
	PendingCount(ctx context.Context) (int, error)
	ConflictCount(ctx context.Context) (int, error)
}

// Aggregator folds connectivity, processor progress and queue counts into
// snapshots and fans them out to subscribers.
type Aggregator struct {
	counter Counter

	mu       sync.RWMutex
	snapshot Snapshot
	subs     map[chan Snapshot]struct{}
}

// NewAggregator builds an aggregator reading queue depths from counter.
func NewAggregator(counter Counter) *Aggregator {
	return &Aggregator{
		counter: counter,
		snapshot: Snapshot{
			Mode: ModeAutomatic,
		},
		subs: make(map[chan Snapshot]struct{}),
	}
}

// Subscribe returns a channel receiving every snapshot change, plus a
// cancel function. Slow subscribers miss intermediate snapshots rather
// than blocking the engine.
func (a *Aggregator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	a.mu.Lock()
	a.subs[ch] = struct{}{}
	ch <- a.snapshot
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subs[ch]; ok {
			delete(a.subs, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// Current returns the latest snapshot.
func (a *Aggregator) Current() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// SetOnline records a connectivity change.
func (a *Aggregator) SetOnline(online bool) {
	a.update(func(s *Snapshot) { s.Online = online })
}

// SetMode records whether runs are scheduled or user-triggered.
func (a *Aggregator) SetMode(mode Mode) {
	a.update(func(s *Snapshot) { s.Mode = mode })
}

// RunStarted marks a processing run as active.
func (a *Aggregator) RunStarted() {
	a.update(func(s *Snapshot) { s.IsSyncing = true })
}

// RunFinished records the run outcome and clears the active flag.
func (a *Aggregator) RunFinished(at time.Time, success bool, errMsg string) {
	a.update(func(s *Snapshot) {
		s.IsSyncing = false
		s.LastSync = &LastSync{At: at, Success: success, Error: errMsg}
	})
}

// RefreshCounts re-reads queue depths. Called after enqueues and at the
// end of each run.
func (a *Aggregator) RefreshCounts(ctx context.Context) error {
	pending, err := a.counter.PendingCount(ctx)
	if err != nil {
		return err
	}
	conflicts, err := a.counter.ConflictCount(ctx)
	if err != nil {
		return err
	}
	a.update(func(s *Snapshot) {
		s.Pending = pending
		s.Conflicts = conflicts
	})
	return nil
}

func (a *Aggregator) update(mutate func(*Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	mutate(&a.snapshot)
	for ch := range a.subs {
		// Drop the stale value if the subscriber has not drained it.
		select {
		case <-ch:
		default:
		}
		ch <- a.snapshot
	}
}
