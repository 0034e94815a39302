package processor

import (
	"github.com/medistock/syncengine/entity"
	"github.com/medistock/syncengine/resolve"
)

// Event is a notification emitted during queue processing. The concrete
// types below form a closed set; consumers switch on them.
type Event interface {
	isEvent()
}

// ProcessingStarted is emitted when a run begins.
type ProcessingStarted struct{}

// ProcessingCompleted is emitted when a run finishes, with counters for
// everything it touched. Failed counts items parked as FAILED for good;
// items left PENDING for a later retry appear only in Processed.
type ProcessingCompleted struct {
	Processed int
	Success   int
	Failed    int
	Conflicts int
}

// ProcessingCancelled is emitted when a run stops early because its
// context was cancelled.
type ProcessingCancelled struct {
	Processed int
}

// ProcessingError is emitted when a run aborts on an engine-level failure,
// as opposed to a single item failing.
type ProcessingError struct {
	Err error
}

// CannotProcess is emitted when a run is requested but the preconditions
// do not hold.
type CannotProcess struct {
	Reason string
}

// ConflictDetected is emitted when an item needs a user decision.
type ConflictDetected struct {
	Conflict resolve.UserConflict
}

// ItemSynced is emitted for each item pushed to the server.
type ItemSynced struct {
	ItemID   string
	Kind     entity.Kind
	EntityID string
}

// ItemFailed is emitted when an item's attempt fails. WillRetry is false
// once the retry budget is exhausted and the item is parked as FAILED.
type ItemFailed struct {
	ItemID    string
	Kind      entity.Kind
	EntityID  string
	Err       error
	WillRetry bool
}

func (ProcessingStarted) isEvent()   {}
func (ProcessingCompleted) isEvent() {}
func (ProcessingCancelled) isEvent() {}
func (ProcessingError) isEvent()     {}
func (CannotProcess) isEvent()       {}
func (ConflictDetected) isEvent()    {}
func (ItemSynced) isEvent()          {}
func (ItemFailed) isEvent()          {}
