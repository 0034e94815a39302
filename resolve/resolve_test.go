package resolve

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/syncengine/entity"
	"github.com/medistock/syncengine/queue"
)

func ts(v int64) *int64 { return &v }

func TestDetectConflict(t *testing.T) {
	tests := []struct {
		name      string
		lastKnown *int64
		remote    *int64
		want      bool
	}{
		{"remote newer", ts(100), ts(200), true},
		{"remote equal", ts(100), ts(100), false},
		{"remote older", ts(200), ts(100), false},
		{"no snapshot", nil, ts(200), false},
		{"no remote", ts(100), nil, false},
		{"neither", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectConflict(tt.lastKnown, tt.remote))
		})
	}
}

func TestCanSyncSafely(t *testing.T) {
	item := &queue.Item{LastKnownRemoteUpdatedAt: ts(100)}
	assert.True(t, CanSyncSafely(item, ts(100)))
	assert.False(t, CanSyncSafely(item, ts(101)))

	// An insert never saw a server version, so it is always safe.
	assert.True(t, CanSyncSafely(&queue.Item{}, ts(500)))
}

func TestStrategyTable(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		kind entity.Kind
		want Strategy
	}{
		{entity.KindProduct, StrategyRemoteWins},
		{entity.KindCategory, StrategyRemoteWins},
		{entity.KindSite, StrategyRemoteWins},
		{entity.KindPackagingType, StrategyRemoteWins},
		{entity.KindPurchaseBatch, StrategyRemoteWins},
		{entity.KindUser, StrategyRemoteWins},
		{entity.KindUserPermission, StrategyRemoteWins},
		{entity.KindSale, StrategyLocalWins},
		{entity.KindSaleItem, StrategyLocalWins},
		{entity.KindStockMovement, StrategyMerge},
		{entity.KindProductTransfer, StrategyMerge},
		{entity.KindCustomer, StrategyMerge},
		{entity.KindInventory, StrategyAskUser},
		{entity.KindUnknown, StrategyRemoteWins},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, r.StrategyFor(tt.kind))
		})
	}
}

func TestWithStrategyOverride(t *testing.T) {
	r := NewResolver(WithStrategy(entity.KindCustomer, StrategyLocalWins))
	assert.Equal(t, StrategyLocalWins, r.StrategyFor(entity.KindCustomer))
	// Other kinds keep their defaults.
	assert.Equal(t, StrategyMerge, r.StrategyFor(entity.KindStockMovement))
}

func TestMergeKeepsLocalUserFieldsAndRemoteSystemFields(t *testing.T) {
	local := json.RawMessage(`{
		"id": "c1",
		"name": "Local Name",
		"phone": "111",
		"created_by": "local-user",
		"updated_at": 300
	}`)
	remote := json.RawMessage(`{
		"id": "c1",
		"name": "Remote Name",
		"phone": "222",
		"email": "c@example.com",
		"created_by": "server-user",
		"updated_at": 500
	}`)

	merged := Merge(entity.KindCustomer, local, remote)

	var got map[string]any
	require.NoError(t, json.Unmarshal(merged, &got))

	assert.Equal(t, "Local Name", got["name"])
	assert.Equal(t, "111", got["phone"])
	// Remote-only fields survive the merge.
	assert.Equal(t, "c@example.com", got["email"])
	// System fields stay remote, except updated_at which takes the max.
	assert.Equal(t, "server-user", got["created_by"])
	assert.Equal(t, float64(500), got["updated_at"])
}

func TestMergeUpdatedAtTakesLocalWhenNewer(t *testing.T) {
	local := json.RawMessage(`{"name":"x","updated_at":700}`)
	remote := json.RawMessage(`{"name":"y","updated_at":500}`)

	var got map[string]any
	require.NoError(t, json.Unmarshal(Merge(entity.KindCustomer, local, remote), &got))
	assert.Equal(t, float64(700), got["updated_at"])
}

func TestMergeQuantityNotSummed(t *testing.T) {
	local := json.RawMessage(`{"quantity":5,"reason":"local reason","updated_at":100}`)
	remote := json.RawMessage(`{"quantity":8,"reason":"remote reason","updated_at":200}`)

	var got map[string]any
	require.NoError(t, json.Unmarshal(Merge(entity.KindStockMovement, local, remote), &got))

	// The local delta was already applied to local stock; it must be kept
	// as-is, never added to the remote value.
	assert.Equal(t, float64(5), got["quantity"])
	assert.Equal(t, "local reason", got["reason"])
}

func TestMergeWithItselfIsIdentity(t *testing.T) {
	payload := json.RawMessage(`{"id":"c1","name":"A","phone":"1","created_by":"u","updated_at":300}`)

	var got map[string]any
	require.NoError(t, json.Unmarshal(Merge(entity.KindCustomer, payload, payload), &got))

	assert.Equal(t, "A", got["name"])
	assert.Equal(t, "1", got["phone"])
	assert.Equal(t, "u", got["created_by"])
	assert.Equal(t, float64(300), got["updated_at"])
}

func TestMergeFallsBackToLocalOnParseError(t *testing.T) {
	local := json.RawMessage(`{"name":"good"}`)

	assert.Equal(t, local, Merge(entity.KindCustomer, local, json.RawMessage(`{not json`)))
	bad := json.RawMessage(`{broken`)
	assert.Equal(t, bad, Merge(entity.KindCustomer, bad, json.RawMessage(`{"name":"ok"}`)))
}

func TestResolveMergeProducesPayload(t *testing.T) {
	r := NewResolver()
	res := r.Resolve(entity.KindCustomer,
		json.RawMessage(`{"name":"local","updated_at":10}`),
		json.RawMessage(`{"name":"remote","updated_at":20}`))

	assert.Equal(t, StrategyMerge, res.Strategy)
	require.NotNil(t, res.MergedPayload)

	var got map[string]any
	require.NoError(t, json.Unmarshal(res.MergedPayload, &got))
	assert.Equal(t, "local", got["name"])
}

func TestResolveNonMergeHasNoPayload(t *testing.T) {
	r := NewResolver()

	for _, kind := range []entity.Kind{entity.KindProduct, entity.KindSale, entity.KindInventory} {
		res := r.Resolve(kind, json.RawMessage(`{}`), json.RawMessage(`{}`))
		assert.Nil(t, res.MergedPayload, kind.String())
		assert.NotEmpty(t, res.Message, kind.String())
	}
}

func TestFieldDifferences(t *testing.T) {
	local := json.RawMessage(`{"id":"c1","name":"A","phone":"111","updated_at":10}`)
	remote := json.RawMessage(`{"id":"c1","name":"B","phone":"111","email":"x@y.z","updated_at":20}`)

	diffs := FieldDifferences(local, remote)

	byField := make(map[string]FieldDifference, len(diffs))
	for _, d := range diffs {
		byField[d.Field] = d
	}

	require.Contains(t, byField, "name")
	assert.Equal(t, "A", byField["name"].Local)
	assert.Equal(t, "B", byField["name"].Remote)

	// Remote-only field shows up with an empty local side.
	require.Contains(t, byField, "email")
	assert.Equal(t, "", byField["email"].Local)

	// Identical and system fields are omitted.
	assert.NotContains(t, byField, "phone")
	assert.NotContains(t, byField, "id")
	assert.NotContains(t, byField, "updated_at")
}

func TestFieldDifferencesSortedByName(t *testing.T) {
	local := json.RawMessage(`{"zeta":"1","alpha":"1","mid":"1"}`)
	remote := json.RawMessage(`{"zeta":"2","alpha":"2","mid":"2"}`)

	diffs := FieldDifferences(local, remote)

	require.Len(t, diffs, 3)
	assert.Equal(t, "alpha", diffs[0].Field)
	assert.Equal(t, "mid", diffs[1].Field)
	assert.Equal(t, "zeta", diffs[2].Field)
}

func TestNewUserConflict(t *testing.T) {
	item := &queue.Item{
		ID:       "q1",
		Kind:     entity.KindInventory,
		EntityID: "inv-1",
		Payload:  json.RawMessage(`{"expected_quantity":10}`),
	}
	remote := json.RawMessage(`{"expected_quantity":12}`)

	uc := NewUserConflict(item, remote)
	assert.Equal(t, "q1", uc.ItemID)
	assert.Equal(t, "inv-1", uc.EntityID)
	assert.Equal(t, entity.KindInventory.String(), uc.EntityType)
	require.Len(t, uc.Differences, 1)
	assert.Equal(t, "expected_quantity", uc.Differences[0].Field)
}
