// Package scheduler decides when sync runs happen: on a fixed interval, on
// demand, and on connectivity changes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/medistock/syncengine/logging"
)

// Runner starts one queue drain. *processor.Processor satisfies it.
type Runner interface {
	Process(ctx context.Context) error
}

// Realtime is the change-feed subscription toggled with connectivity.
// *realtime.Listener satisfies it.
type Realtime interface {
	Start(ctx context.Context)
	Stop()
}

// Monitor reports device connectivity. Changes delivers a value on every
// transition; Online returns the current state.
type Monitor interface {
	Online() bool
	Changes() <-chan bool
}

// ManualMonitor is a Monitor driven by explicit Set calls. Embedders hook
// it to platform connectivity callbacks; tests drive it directly.
type ManualMonitor struct {
	mu      sync.Mutex
	online  bool
	changes chan bool
}

// NewManualMonitor returns a monitor starting in the given state.
func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{online: online, changes: make(chan bool, 8)}
}

func (m *ManualMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ManualMonitor) Changes() <-chan bool {
	return m.changes
}

// Set records a connectivity change. Repeated states are not re-announced.
func (m *ManualMonitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.mu.Unlock()

	select {
	case m.changes <- online:
	default:
	}
}

// Scheduler drives the processor. A deferred run replaces any previously
// scheduled one rather than stacking behind it.
type Scheduler struct {
	runner   Runner
	realtime Realtime
	monitor  Monitor
	interval time.Duration
	logger   *logging.Logger

	// onOnline runs before the immediate sync when connectivity returns,
	// giving the embedder a chance to rebuild the remote client.
	onOnline func()

	// onChange receives every connectivity transition, online and offline.
	onChange func(online bool)

	trigger chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRealtime attaches a realtime listener started while online.
func WithRealtime(rt Realtime) Option {
	return func(s *Scheduler) {
		s.realtime = rt
	}
}

// WithOnOnline sets a hook run when connectivity returns, before the
// immediate sync.
func WithOnOnline(fn func()) Option {
	return func(s *Scheduler) {
		s.onOnline = fn
	}
}

// WithOnChange sets a hook observing every connectivity transition.
func WithOnChange(fn func(online bool)) Option {
	return func(s *Scheduler) {
		s.onChange = fn
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler running the processor every interval while online.
func New(runner Runner, monitor Monitor, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		monitor:  monitor,
		interval: interval,
		logger:   logging.Default(),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduling loop. No-op when already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(runCtx)
}

// Stop halts scheduling and the realtime listener, waiting for the loop to
// exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

// TriggerNow requests an immediate run, replacing any pending deferred one.
// Requests while a trigger is already queued collapse into it.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	// Starting while online means the device may have queued mutations from
	// an offline stretch; drain right away instead of waiting an interval.
	if s.monitor.Online() {
		if s.realtime != nil {
			s.realtime.Start(ctx)
		}
		s.run(ctx)
	}
	defer func() {
		if s.realtime != nil {
			s.realtime.Stop()
		}
	}()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	reset := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.interval)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			s.run(ctx)
			timer.Reset(s.interval)

		case <-s.trigger:
			s.run(ctx)
			reset()

		case online, ok := <-s.monitor.Changes():
			if !ok {
				return
			}
			if s.onChange != nil {
				s.onChange(online)
			}
			if online {
				s.logger.Info("connectivity restored")
				if s.onOnline != nil {
					s.onOnline()
				}
				if s.realtime != nil {
					s.realtime.Start(ctx)
				}
				s.run(ctx)
				reset()
			} else {
				s.logger.Info("connectivity lost")
				if s.realtime != nil {
					s.realtime.Stop()
				}
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if !s.monitor.Online() {
		s.logger.Debug("skipping scheduled run while offline")
		return
	}
	if err := s.runner.Process(ctx); err != nil && ctx.Err() == nil {
		s.logger.LogError(ctx, err, "scheduled sync run failed")
	}
}
