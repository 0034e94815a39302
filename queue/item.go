// Package queue provides the durable store of pending local mutations
// awaiting remote synchronization, backed by SQLite.
package queue

import (
	"encoding/json"

	"github.com/medistock/syncengine/entity"
)

// Operation is the kind of local mutation a queue item carries.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Status is the processing state of a queue item. PENDING, IN_PROGRESS and
// FAILED are owned by the processor; CONFLICT waits for an external
// ResolveConflict call.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusConflict   Status = "CONFLICT"
	StatusFailed     Status = "FAILED"

	// StatusSynced is never set by the processor, which deletes items on
	// success instead. DeleteSynced sweeps any rows that end up in this
	// state anyway, as a defensive cleanup.
	StatusSynced Status = "SYNCED"
)

// Item is one pending mutation. ID, Kind, EntityID and Op are immutable
// after enqueue; only the processor mutates the rest.
type Item struct {
	ID       string
	Kind     entity.Kind
	EntityID string
	Op       Operation

	// Payload is the serialized entity snapshot taken at enqueue time.
	// Empty for DELETE operations.
	Payload json.RawMessage

	// SiteID is an optional partition hint. It plays no role in ordering.
	SiteID string

	// CreatedAt is the logical timestamp of the local mutation in epoch
	// milliseconds. Items for the same entity are processed in this order.
	CreatedAt int64

	// LastKnownRemoteUpdatedAt is the remote modification timestamp this
	// device last observed for the entity, nil if never fetched. It is the
	// baseline for conflict detection.
	LastKnownRemoteUpdatedAt *int64

	RetryCount    int
	Status        Status
	LastError     string
	LastAttemptAt *int64
}
