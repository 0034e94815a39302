package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	runs atomic.Int32
	ran  chan struct{}
}

func newCountingRunner() *countingRunner {
	return &countingRunner{ran: make(chan struct{}, 16)}
}

func (r *countingRunner) Process(ctx context.Context) error {
	r.runs.Add(1)
	select {
	case r.ran <- struct{}{}:
	default:
	}
	return nil
}

type fakeRealtime struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakeRealtime) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeRealtime) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeRealtime) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

func waitFor(t *testing.T, ch chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestPeriodicRun(t *testing.T) {
	runner := newCountingRunner()
	s := New(runner, NewManualMonitor(true), 20*time.Millisecond)

	s.Start(context.Background())
	defer s.Stop()

	// First the immediate run on start, then the interval kicks in.
	waitFor(t, runner.ran, "no run on start")
	waitFor(t, runner.ran, "no scheduled run happened")
}

func TestStartWhileOnlineRunsImmediately(t *testing.T) {
	runner := newCountingRunner()
	s := New(runner, NewManualMonitor(true), time.Hour)

	s.Start(context.Background())
	defer s.Stop()

	// The first drain must not wait out the interval.
	waitFor(t, runner.ran, "no immediate run on start")
}

func TestStartWhileOfflineDefersFirstRun(t *testing.T) {
	runner := newCountingRunner()
	s := New(runner, NewManualMonitor(false), time.Hour)

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Zero(t, runner.runs.Load())
}

func TestTriggerNowRunsImmediately(t *testing.T) {
	runner := newCountingRunner()
	s := New(runner, NewManualMonitor(true), time.Hour)

	s.Start(context.Background())
	defer s.Stop()

	s.TriggerNow()
	waitFor(t, runner.ran, "triggered run never happened")
}

func TestOfflineSkipsRuns(t *testing.T) {
	runner := newCountingRunner()
	s := New(runner, NewManualMonitor(false), time.Hour)

	s.Start(context.Background())
	s.TriggerNow()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Zero(t, runner.runs.Load(), "offline device must not sync")
}

func TestConnectivityRestoredRunsAndStartsRealtime(t *testing.T) {
	runner := newCountingRunner()
	monitor := NewManualMonitor(false)
	rt := &fakeRealtime{}

	var reinit atomic.Int32
	s := New(runner, monitor, time.Hour,
		WithRealtime(rt),
		WithOnOnline(func() { reinit.Add(1) }))

	s.Start(context.Background())
	defer s.Stop()

	started, _ := rt.counts()
	assert.Zero(t, started, "realtime stays down while offline")

	monitor.Set(true)
	waitFor(t, runner.ran, "no run after connectivity returned")

	started, _ = rt.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, int32(1), reinit.Load())
}

func TestConnectivityLostStopsRealtime(t *testing.T) {
	runner := newCountingRunner()
	monitor := NewManualMonitor(true)
	rt := &fakeRealtime{}
	transitions := make(chan bool, 4)

	s := New(runner, monitor, time.Hour,
		WithRealtime(rt),
		WithOnChange(func(online bool) { transitions <- online }))

	s.Start(context.Background())
	defer s.Stop()

	monitor.Set(false)
	select {
	case online := <-transitions:
		assert.False(t, online)
	case <-time.After(2 * time.Second):
		t.Fatal("offline transition never observed")
	}

	assert.Eventually(t, func() bool {
		_, stopped := rt.counts()
		return stopped == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManualMonitorCollapsesRepeatedStates(t *testing.T) {
	m := NewManualMonitor(false)
	m.Set(false)
	m.Set(true)
	m.Set(true)

	assert.True(t, m.Online())
	assert.Len(t, m.changes, 1, "only the actual transition is announced")
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(newCountingRunner(), NewManualMonitor(true), time.Hour)
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
