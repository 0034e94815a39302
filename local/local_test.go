package local

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/syncengine/entity"
)

func TestMemoryStoreCRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, "a", json.RawMessage(`{"v":1}`)))
	assert.ErrorIs(t, store.Insert(ctx, "a", json.RawMessage(`{"v":2}`)), ErrExists)

	got, err := store.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got))

	require.NoError(t, store.Update(ctx, "a", json.RawMessage(`{"v":2}`)))
	assert.ErrorIs(t, store.Update(ctx, "missing", json.RawMessage(`{}`)), ErrNotFound)

	require.NoError(t, store.Upsert(ctx, "b", json.RawMessage(`{"v":3}`)))
	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.ErrorIs(t, store.Delete(ctx, "a"), ErrNotFound)
	assert.Equal(t, []string{"b"}, store.IDs())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.For(entity.KindProduct))

	store := NewMemoryStore()
	reg.Register(entity.KindProduct, store)
	assert.Same(t, Store(store), reg.For(entity.KindProduct))
	assert.Nil(t, reg.For(entity.KindSale))
}
