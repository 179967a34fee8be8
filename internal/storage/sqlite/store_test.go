package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/storage"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "orders.db")

	store, err := NewStore(path)
	require.NoError(t, err)

	_, err = store.Load(ctx, "my_orders")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	require.NoError(t, store.Store(ctx, "my_orders", []byte(`{"v":1}`)))
	require.NoError(t, store.Store(ctx, "my_orders", []byte(`{"v":2}`)))

	data, err := store.Load(ctx, "my_orders")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))
	assert.NoError(t, store.Health(ctx))
	require.NoError(t, store.Close())

	t.Run("数据在重新打开后仍然存在", func(t *testing.T) {
		reopened, err := NewStore(path)
		require.NoError(t, err)
		defer reopened.Close()

		data, err := reopened.Load(ctx, "my_orders")
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(data))
	})
}

func TestNewStoreRequiresPath(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}
