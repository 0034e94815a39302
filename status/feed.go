package status

import (
	"context"
	"time"

	"github.com/medistock/syncengine/processor"
)

// Feed consumes processor events until ctx ends or the channel closes,
// keeping the snapshot's run state and queue depths current. Run it in its
// own goroutine alongside the processor.
func (a *Aggregator) Feed(ctx context.Context, events <-chan processor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.Apply(ctx, ev)
		}
	}
}

// Apply folds one processor event into the snapshot.
func (a *Aggregator) Apply(ctx context.Context, ev processor.Event) {
	switch e := ev.(type) {
	case processor.ProcessingStarted:
		a.RunStarted()
	case processor.ProcessingCompleted:
		a.RunFinished(time.Now(), e.Failed == 0, "")
		// A failing depth read keeps the previous counts; the next refresh
		// catches up.
		_ = a.RefreshCounts(ctx)
	case processor.ProcessingCancelled:
		a.RunFinished(time.Now(), false, context.Canceled.Error())
		_ = a.RefreshCounts(ctx)
	case processor.ProcessingError:
		a.RunFinished(time.Now(), false, e.Err.Error())
		_ = a.RefreshCounts(ctx)
	case processor.ConflictDetected:
		_ = a.RefreshCounts(ctx)
	}
}
