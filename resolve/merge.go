package resolve

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/medistock/syncengine/entity"
)

// Merge combines a local and a remote payload for entities with the MERGE
// strategy. The remote version is the base; local values overlay every
// field the user can edit. System fields stay remote so server-side
// bookkeeping survives, except updated_at, which becomes the later of the
// two so the merged record never looks older than either input.
//
// Quantity fields tagged local-wins keep the local value outright. They
// represent deltas already applied to local stock, so summing them with the
// remote value would double count.
//
// If either payload fails to parse, the local payload is returned as-is:
// losing a local mutation is worse than pushing it unmerged.
func Merge(kind entity.Kind, localPayload, remotePayload json.RawMessage) json.RawMessage {
	local, err := decodeFields(localPayload)
	if err != nil {
		return localPayload
	}
	remote, err := decodeFields(remotePayload)
	if err != nil {
		return localPayload
	}

	merged := make(map[string]json.RawMessage, len(remote)+len(local))
	for field, value := range remote {
		merged[field] = value
	}
	for field, value := range local {
		if entity.ClassOf(kind, field) == entity.FieldSystem {
			continue
		}
		merged[field] = value
	}

	if ts := maxUpdatedAt(local, remote); ts != nil {
		merged[entity.UpdatedAtField] = json.RawMessage(strconv.FormatInt(*ts, 10))
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return localPayload
	}
	return out
}

func decodeFields(payload json.RawMessage) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// maxUpdatedAt returns the later updated_at of the two payloads, or nil
// when neither carries one.
func maxUpdatedAt(local, remote map[string]json.RawMessage) *int64 {
	lt := parseTimestamp(local[entity.UpdatedAtField])
	rt := parseTimestamp(remote[entity.UpdatedAtField])
	switch {
	case lt == nil:
		return rt
	case rt == nil:
		return lt
	case *rt > *lt:
		return rt
	default:
		return lt
	}
}

func parseTimestamp(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var ts int64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil
	}
	return &ts
}

func rawEqual(a, b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
