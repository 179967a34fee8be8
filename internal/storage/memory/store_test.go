package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/storage"
)

func TestMemoryStore_LoadStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Load(ctx, "my_orders")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	value := []byte(`{"PN1":{}}`)
	require.NoError(t, store.Store(ctx, "my_orders", value))

	// 修改调用方切片不影响已保存的数据
	value[0] = 'x'
	loaded, err := store.Load(ctx, "my_orders")
	require.NoError(t, err)
	assert.Equal(t, `{"PN1":{}}`, string(loaded))

	loaded[0] = 'y'
	again, err := store.Load(ctx, "my_orders")
	require.NoError(t, err)
	assert.Equal(t, `{"PN1":{}}`, string(again))
}

func TestMemoryStore_Close(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Health(ctx))
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Health(ctx), storage.ErrBackendClosed)
	assert.ErrorIs(t, store.Store(ctx, "k", nil), storage.ErrBackendClosed)
	_, err := store.Load(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrBackendClosed)
}
