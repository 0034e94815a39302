// Package realtime receives server change notifications over a websocket
// and filters out echoes of this installation's own writes before they are
// applied locally.
package realtime

import (
	"encoding/json"
	"strings"
)

// ChangeType identifies the kind of remote change.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one change notification from the server. Record carries
// the row after the change; OldRecord carries the row before it, and is the
// only snapshot available for deletes.
type ChangeEvent struct {
	Type      ChangeType      `json:"type"`
	Table     string          `json:"table"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

// EchoFilter drops change events caused by this installation's own writes.
// Every outgoing write is stamped with the installation id; when the same
// id comes back in a notification the change is already applied locally.
type EchoFilter struct {
	clientID string
}

// NewEchoFilter builds a filter for the given installation id.
func NewEchoFilter(clientID string) *EchoFilter {
	return &EchoFilter{clientID: clientID}
}

// ShouldProcess reports whether the event originated elsewhere and must be
// applied. Events without a recognizable client_id are always processed:
// losing a foreign change is worse than reapplying our own.
func (f *EchoFilter) ShouldProcess(event ChangeEvent) bool {
	record := event.Record
	if event.Type == ChangeDelete {
		record = event.OldRecord
	}

	origin := extractClientID(record)
	if strings.TrimSpace(origin) == "" {
		return true
	}
	return origin != f.clientID
}

func extractClientID(record json.RawMessage) string {
	if len(record) == 0 {
		return ""
	}
	var holder struct {
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(record, &holder); err != nil {
		return ""
	}
	return holder.ClientID
}
