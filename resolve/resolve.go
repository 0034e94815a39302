// Package resolve decides what happens when a queued local mutation meets a
// newer remote version of the same entity. Detection compares remote
// timestamps against the snapshot taken when the mutation was queued;
// resolution applies a per-entity strategy.
package resolve

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/medistock/syncengine/entity"
	"github.com/medistock/syncengine/queue"
)

// Strategy selects how a detected conflict is resolved.
type Strategy int

const (
	// StrategyRemoteWins discards the local change in favor of the server
	// version. Default for reference data maintained centrally.
	StrategyRemoteWins Strategy = iota

	// StrategyLocalWins pushes the local change over the server version.
	// Used for sales records, which are authoritative at the point of sale.
	StrategyLocalWins

	// StrategyMerge combines both versions field by field.
	StrategyMerge

	// StrategyAskUser defers the decision to a human.
	StrategyAskUser

	// StrategyKeepBoth preserves both versions by giving the local one a
	// fresh identity.
	StrategyKeepBoth
)

var strategyNames = map[Strategy]string{
	StrategyRemoteWins: "REMOTE_WINS",
	StrategyLocalWins:  "LOCAL_WINS",
	StrategyMerge:      "MERGE",
	StrategyAskUser:    "ASK_USER",
	StrategyKeepBoth:   "KEEP_BOTH",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// defaultStrategies maps each entity kind to its resolution strategy.
// Reference data is maintained centrally, so the server wins. Sales are
// authoritative where they happened. Movement-like records merge, with
// quantities kept local to avoid double counting. Inventory counts need a
// human to arbitrate.
var defaultStrategies = map[entity.Kind]Strategy{
	entity.KindProduct:         StrategyRemoteWins,
	entity.KindCategory:        StrategyRemoteWins,
	entity.KindSite:            StrategyRemoteWins,
	entity.KindPackagingType:   StrategyRemoteWins,
	entity.KindPurchaseBatch:   StrategyRemoteWins,
	entity.KindUser:            StrategyRemoteWins,
	entity.KindUserPermission:  StrategyRemoteWins,
	entity.KindSale:            StrategyLocalWins,
	entity.KindSaleItem:        StrategyLocalWins,
	entity.KindStockMovement:   StrategyMerge,
	entity.KindProductTransfer: StrategyMerge,
	entity.KindCustomer:        StrategyMerge,
	entity.KindInventory:       StrategyAskUser,
}

// Resolver applies conflict strategies. The zero value is not usable; use
// NewResolver.
type Resolver struct {
	strategies map[entity.Kind]Strategy
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithStrategy overrides the strategy for one entity kind.
func WithStrategy(kind entity.Kind, strategy Strategy) ResolverOption {
	return func(r *Resolver) {
		r.strategies[kind] = strategy
	}
}

// NewResolver builds a resolver with the default per-entity strategy table.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{strategies: make(map[entity.Kind]Strategy, len(defaultStrategies))}
	for k, v := range defaultStrategies {
		r.strategies[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StrategyFor returns the configured strategy for a kind. Unknown kinds
// fall back to remote-wins, the safest default for data we do not own.
func (r *Resolver) StrategyFor(kind entity.Kind) Strategy {
	if s, ok := r.strategies[kind]; ok {
		return s
	}
	return StrategyRemoteWins
}

// DetectConflict reports whether the server has moved past the snapshot a
// local mutation was based on. Both timestamps must be known: a missing
// snapshot means the mutation never saw a server version (nothing to
// conflict with for inserts), and a missing remote timestamp means the
// entity does not exist remotely. Equal timestamps are not a conflict.
func DetectConflict(lastKnownRemoteUpdatedAt, remoteUpdatedAt *int64) bool {
	if lastKnownRemoteUpdatedAt == nil || remoteUpdatedAt == nil {
		return false
	}
	return *remoteUpdatedAt > *lastKnownRemoteUpdatedAt
}

// CanSyncSafely reports whether a queued item can be pushed without
// clobbering a concurrent remote change.
func CanSyncSafely(item *queue.Item, remoteUpdatedAt *int64) bool {
	return !DetectConflict(item.LastKnownRemoteUpdatedAt, remoteUpdatedAt)
}

// Result is the outcome of resolving one conflict.
type Result struct {
	Strategy Strategy

	// MergedPayload is set only for StrategyMerge. For StrategyLocalWins or
	// StrategyKeepBoth callers push the item's own payload; for
	// StrategyRemoteWins they apply the remote version locally.
	MergedPayload json.RawMessage

	// Message describes the outcome for logs and user-facing conflict lists.
	Message string
}

// Resolve applies the strategy for the item's kind to the two payloads.
// localPayload is the queued item's payload; remotePayload is the current
// server version.
func (r *Resolver) Resolve(kind entity.Kind, localPayload, remotePayload json.RawMessage) Result {
	strategy := r.StrategyFor(kind)

	switch strategy {
	case StrategyLocalWins:
		return Result{Strategy: strategy, Message: "local change kept, overwriting remote"}
	case StrategyRemoteWins:
		return Result{Strategy: strategy, Message: "remote version kept, local change discarded"}
	case StrategyMerge:
		merged := Merge(kind, localPayload, remotePayload)
		return Result{Strategy: strategy, MergedPayload: merged, Message: "local and remote versions merged"}
	case StrategyAskUser:
		return Result{Strategy: strategy, Message: "user decision required"}
	case StrategyKeepBoth:
		return Result{Strategy: strategy, Message: "local version kept as a new record"}
	}
	return Result{Strategy: StrategyRemoteWins, Message: "remote version kept, local change discarded"}
}

// UserConflict carries everything the UI needs to present an ASK_USER
// conflict for arbitration.
type UserConflict struct {
	ItemID        string            `json:"item_id"`
	Kind          entity.Kind       `json:"-"`
	EntityType    string            `json:"entity_type"`
	EntityID      string            `json:"entity_id"`
	LocalPayload  json.RawMessage   `json:"local_payload"`
	RemotePayload json.RawMessage   `json:"remote_payload"`
	Differences   []FieldDifference `json:"differences"`
}

// FieldDifference is one field whose local and remote values disagree.
type FieldDifference struct {
	Field  string `json:"field"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// NewUserConflict builds a UserConflict from a queued item and the current
// remote payload, computing per-field differences.
func NewUserConflict(item *queue.Item, remotePayload json.RawMessage) UserConflict {
	return UserConflict{
		ItemID:        item.ID,
		Kind:          item.Kind,
		EntityType:    item.Kind.String(),
		EntityID:      item.EntityID,
		LocalPayload:  item.Payload,
		RemotePayload: remotePayload,
		Differences:   FieldDifferences(item.Payload, remotePayload),
	}
}

// FieldDifferences lists fields whose values differ between two payloads,
// sorted by field name. System fields are skipped. Fields present on only
// one side count as different, with the missing side rendered empty.
func FieldDifferences(localPayload, remotePayload json.RawMessage) []FieldDifference {
	local, errL := decodeFields(localPayload)
	remote, errR := decodeFields(remotePayload)
	if errL != nil || errR != nil {
		return nil
	}

	seen := make(map[string]bool, len(local))
	var diffs []FieldDifference

	for field, lv := range local {
		seen[field] = true
		if isSystemFieldName(field) {
			continue
		}
		rv := remote[field]
		if !rawEqual(lv, rv) {
			diffs = append(diffs, FieldDifference{Field: field, Local: rawString(lv), Remote: rawString(rv)})
		}
	}
	for field, rv := range remote {
		if seen[field] || isSystemFieldName(field) {
			continue
		}
		diffs = append(diffs, FieldDifference{Field: field, Local: "", Remote: rawString(rv)})
	}

	// Map iteration order is random; present the list stably.
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs
}

// isSystemFieldName matches bookkeeping fields that never count as user
// visible differences, for any entity kind.
func isSystemFieldName(field string) bool {
	switch field {
	case "id", "created_at", "created_by", "updated_at", "updated_by":
		return true
	}
	return false
}
