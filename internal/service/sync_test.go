package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/domain"
)

func TestSyncEngine_Reconcile(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	ctx := context.Background()

	// 本地 {A, C}，供应商 {A, B}
	a := env.seed(t, "PNA", "+15551230001", "wa", 1)
	a.Code = "123456"
	a.Status = domain.OrderStatusCompleted
	require.NoError(t, env.orders.Save(ctx, a))
	require.NoError(t, env.orders.Save(ctx, domain.NewOrder("PNC", "+15551230003", "tg", 1, domain.OrderStatusReady, env.clock.Now())))
	env.fake.AddOwned("PNB", "+46701234567")

	env.clock.Advance(2 * time.Hour)
	result, err := env.sync.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Evicted)
	require.Len(t, result.Orders, 2)

	t.Run("已有订单原样保留", func(t *testing.T) {
		got, err := env.orders.Get(ctx, "PNA")
		require.NoError(t, err)
		assert.Equal(t, *a, *got)
	})

	t.Run("新号码以 READY 导入", func(t *testing.T) {
		got, err := env.orders.Get(ctx, "PNB")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusReady, got.Status)
		assert.Equal(t, domain.UnknownServiceID, got.ServiceID)
		assert.Equal(t, 46, got.CountryID)
		assert.Equal(t, env.clock.Now(), got.CreatedAt)
		assert.Equal(t, got.CreatedAt.Add(domain.OrderTTL), got.ExpiresAt)
		assert.Empty(t, got.Code)
	})

	t.Run("供应商不再持有的订单被删除", func(t *testing.T) {
		_, err := env.orders.Get(ctx, "PNC")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("重复对账是幂等的", func(t *testing.T) {
		again, err := env.sync.Sync(ctx)
		require.NoError(t, err)
		assert.Zero(t, again.Imported)
		assert.Zero(t, again.Evicted)
		assert.Equal(t, result.Orders, again.Orders)
	})
}

func TestSyncEngine_ProviderFailureKeepsLocalOrders(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	ctx := context.Background()

	env.seed(t, "PNA", "+15551230001", "wa", 1)
	require.NoError(t, env.orders.Save(ctx, domain.NewOrder("PNC", "+15551230003", "tg", 1, domain.OrderStatusReady, env.clock.Now())))
	env.fake.SetOwnedErr(domain.NewProviderError(domain.ErrTransient, 503, 0, "unavailable"))

	result, err := env.sync.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.Len(t, result.Orders, 2)

	all, err := env.orders.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSyncEngine_ImportedOrderIgnoresOldMessages(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	ctx := context.Background()

	env.fake.AddOwned("PNB", "+15551230002")
	env.fake.Deliver("+15551230002", sms("SMold", "Your code is 111222", env.clock.Now().Add(-3*time.Hour)))

	_, err := env.sync.Sync(ctx)
	require.NoError(t, err)

	res, err := env.polls.PollOnce(ctx, "PNB")
	require.NoError(t, err)
	assert.Zero(t, res.NewMessages)
	assert.Empty(t, res.Order.Code)
}

func TestSyncEngine_StoreFailure(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	env.fake.AddOwned("PNB", "+15551230002")

	backendErr := errors.New("backend down")
	repo := new(MockOrderRepository)
	repo.On("Mutate", mock.Anything, mock.Anything).Return(backendErr)
	engine := NewSyncEngine(env.gateway, repo, nil, env.clock, nil, nil)

	_, err := engine.Sync(context.Background())
	assert.ErrorIs(t, err, backendErr)
	repo.AssertExpectations(t)
}

func TestSyncEngine_StaleReadFailure(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	env.fake.SetOwnedErr(domain.NewProviderError(domain.ErrAuth, 401, 20003, "Authenticate"))

	backendErr := errors.New("backend down")
	repo := new(MockOrderRepository)
	repo.On("List", mock.Anything).Return(nil, backendErr)
	engine := NewSyncEngine(env.gateway, repo, nil, env.clock, nil, nil)

	_, err := engine.Sync(context.Background())
	assert.ErrorIs(t, err, backendErr)
	repo.AssertNotCalled(t, "Mutate", mock.Anything, mock.Anything)
}
