package status

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	pending   int
	conflicts int
}

func (f *fakeCounter) PendingCount(ctx context.Context) (int, error)  { return f.pending, nil }
func (f *fakeCounter) ConflictCount(ctx context.Context) (int, error) { return f.conflicts, nil }

func TestAggregatorSnapshotUpdates(t *testing.T) {
	counter := &fakeCounter{pending: 3, conflicts: 1}
	agg := NewAggregator(counter)

	require.NoError(t, agg.RefreshCounts(context.Background()))
	agg.SetOnline(true)
	agg.RunStarted()

	snap := agg.Current()
	assert.Equal(t, 3, snap.Pending)
	assert.Equal(t, 1, snap.Conflicts)
	assert.True(t, snap.Online)
	assert.True(t, snap.IsSyncing)
	assert.Equal(t, ModeAutomatic, snap.Mode)
	assert.Nil(t, snap.LastSync)

	finishedAt := time.Now()
	agg.RunFinished(finishedAt, false, "network unreachable")

	snap = agg.Current()
	assert.False(t, snap.IsSyncing)
	require.NotNil(t, snap.LastSync)
	assert.Equal(t, finishedAt, snap.LastSync.At)
	assert.False(t, snap.LastSync.Success)
	assert.Equal(t, "network unreachable", snap.LastSync.Error)
}

func TestSubscribeReceivesInitialAndChanges(t *testing.T) {
	agg := NewAggregator(&fakeCounter{})

	ch, cancel := agg.Subscribe()
	defer cancel()

	initial := <-ch
	assert.False(t, initial.Online)

	agg.SetOnline(true)
	got := <-ch
	assert.True(t, got.Online)
}

func TestSlowSubscriberGetsLatestNotBacklog(t *testing.T) {
	agg := NewAggregator(&fakeCounter{})

	ch, cancel := agg.Subscribe()
	defer cancel()

	// Never drained the initial snapshot; pile up changes.
	agg.SetOnline(true)
	agg.SetMode(ModeManual)
	agg.RunStarted()

	got := <-ch
	assert.True(t, got.IsSyncing, "subscriber sees the most recent state")
	assert.Equal(t, ModeManual, got.Mode)
}

func TestCancelClosesChannel(t *testing.T) {
	agg := NewAggregator(&fakeCounter{})
	ch, cancel := agg.Subscribe()
	<-ch // drain the initial snapshot

	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)

	// Updates after cancel must not panic on the closed channel.
	agg.SetOnline(true)
}
