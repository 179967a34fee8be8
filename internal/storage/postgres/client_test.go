package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/config"
	"smsrent/backend/internal/storage"
)

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(&config.DatabaseConfig{}, nil)
	assert.Error(t, err)
}

// 需要真实 PostgreSQL，未设置 SMSRENT_TEST_POSTGRES_DSN 时跳过。
func TestClient_Integration(t *testing.T) {
	dsn := os.Getenv("SMSRENT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SMSRENT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	client, err := New(&config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2}, nil)
	require.NoError(t, err)
	defer client.Close()

	key := "test-" + uuid.NewString()
	defer client.pool.Exec(ctx, `DELETE FROM kv_records WHERE record_key = $1`, key)

	_, err = client.Load(ctx, key)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	require.NoError(t, client.Store(ctx, key, []byte(`{"v":1}`)))
	require.NoError(t, client.Store(ctx, key, []byte(`{"v":2}`)))
	data, err := client.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
}
