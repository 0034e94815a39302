package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/syncengine/processor"
)

func TestApplyProcessorEvents(t *testing.T) {
	counter := &fakeCounter{pending: 2, conflicts: 1}
	agg := NewAggregator(counter)
	ctx := context.Background()

	agg.Apply(ctx, processor.ProcessingStarted{})
	assert.True(t, agg.Current().IsSyncing)

	agg.Apply(ctx, processor.ProcessingCompleted{Processed: 3, Success: 3})
	snap := agg.Current()
	assert.False(t, snap.IsSyncing)
	require.NotNil(t, snap.LastSync)
	assert.True(t, snap.LastSync.Success)
	assert.False(t, snap.LastSync.At.IsZero())
	assert.Equal(t, 2, snap.Pending, "queue depths refresh when a run finishes")
	assert.Equal(t, 1, snap.Conflicts)

	agg.Apply(ctx, processor.ProcessingCompleted{Processed: 2, Failed: 1})
	assert.False(t, agg.Current().LastSync.Success, "permanent failures mark the run unsuccessful")

	agg.Apply(ctx, processor.ProcessingError{Err: errors.New("boom")})
	snap = agg.Current()
	assert.False(t, snap.LastSync.Success)
	assert.Equal(t, "boom", snap.LastSync.Error)
}

func TestFeedStopsWhenChannelCloses(t *testing.T) {
	agg := NewAggregator(&fakeCounter{})
	events := make(chan processor.Event, 1)
	events <- processor.ProcessingStarted{}
	close(events)

	done := make(chan struct{})
	go func() {
		agg.Feed(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on channel close")
	}
	assert.True(t, agg.Current().IsSyncing, "the queued event was applied before shutdown")
}
