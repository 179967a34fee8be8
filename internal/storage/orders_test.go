package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/storage"
	"smsrent/backend/internal/storage/memory"
)

func newTestStore(t *testing.T) (*storage.OrderStore, *memory.Store, *clockwork.FakeClock) {
	t.Helper()
	backend := memory.NewStore()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return storage.NewOrderStore(backend, "", clk, nil), backend, clk
}

func TestOrderStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	store, _, clk := newTestStore(t)

	order := domain.NewOrder("PN1", "+15551234567", "wa", 1, domain.OrderStatusPending, clk.Now())
	require.NoError(t, store.Save(ctx, order))

	t.Run("按 ID 查询", func(t *testing.T) {
		got, err := store.Get(ctx, "PN1")
		require.NoError(t, err)
		assert.Equal(t, order, got)
	})

	t.Run("按号码查询", func(t *testing.T) {
		got, err := store.Get(ctx, "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, "PN1", got.ID)

		got, err = store.Get(ctx, " 15551234567")
		require.NoError(t, err)
		assert.Equal(t, "PN1", got.ID)
	})

	t.Run("不存在的订单", func(t *testing.T) {
		_, err := store.Get(ctx, "PN404")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("返回的副本不共享记录", func(t *testing.T) {
		got, err := store.Get(ctx, "PN1")
		require.NoError(t, err)
		got.Status = domain.OrderStatusCancelled

		again, err := store.Get(ctx, "PN1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, again.Status)
	})

	t.Run("拒绝没有 ID 的订单", func(t *testing.T) {
		err := store.Save(ctx, &domain.Order{PhoneNumber: "+15550000000"})
		assert.ErrorIs(t, err, domain.ErrOrderIDRequired)
	})
}

func TestOrderStore_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	cet := time.FixedZone("CET", 3600)
	created := time.Date(2026, 3, 1, 13, 0, 0, 123456789, cet)
	errCode := 30003

	t.Run("非 UTC 时间与短信", func(t *testing.T) {
		order := &domain.Order{
			ID:          "PN1",
			PhoneNumber: "+46701234567",
			ServiceID:   "wa",
			CountryID:   46,
			Status:      domain.OrderStatusCompleted,
			Code:        "482910",
			CreatedAt:   created,
			ExpiresAt:   created.Add(domain.OrderTTL),
			Messages: []domain.Message{
				{ID: "SM2", Body: "Your code is 482910", Date: created.Add(2 * time.Minute), Sender: "WhatsApp"},
				{ID: "SM1", Body: "undelivered", Date: created.Add(time.Minute), Sender: "Bank",
					Status: "failed", ErrorCode: &errCode, ErrorMessage: "Unreachable"},
			},
		}
		require.NoError(t, store.Save(ctx, order))

		got, err := store.Get(ctx, "PN1")
		require.NoError(t, err)
		assert.Equal(t, order, got)
		assert.True(t, got.CreatedAt.Equal(created))
	})

	t.Run("空短信列表", func(t *testing.T) {
		order := &domain.Order{
			ID:          "PN2",
			PhoneNumber: "+46701234568",
			ServiceID:   "tg",
			CountryID:   46,
			Status:      domain.OrderStatusPending,
			CreatedAt:   created,
			ExpiresAt:   created.Add(domain.OrderTTL),
			Messages:    []domain.Message{},
		}
		require.NoError(t, store.Save(ctx, order))

		got, err := store.Get(ctx, "PN2")
		require.NoError(t, err)
		assert.Equal(t, order, got)
	})
}

func TestOrderStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store, _, clk := newTestStore(t)

	order := domain.NewOrder("PN1", "+15551234567", "wa", 1, domain.OrderStatusPending, clk.Now())
	require.NoError(t, store.Save(ctx, order))

	order.Code = "123456"
	order.Status = domain.OrderStatusCompleted
	require.NoError(t, store.Save(ctx, order))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "123456", all[0].Code)
}

func TestOrderStore_ListActivePrunesExpired(t *testing.T) {
	ctx := context.Background()
	store, backend, clk := newTestStore(t)

	old := domain.NewOrder("PN-old", "+15550000001", "wa", 1, domain.OrderStatusPending, clk.Now())
	require.NoError(t, store.Save(ctx, old))
	clk.Advance(24 * time.Hour)
	fresh := domain.NewOrder("PN-new", "+15550000002", "tg", 1, domain.OrderStatusPending, clk.Now())
	require.NoError(t, store.Save(ctx, fresh))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "PN-new", active[0].ID, "最新创建的排在前面")

	// 第一个订单恰好到期
	clk.Advance(domain.OrderTTL - 24*time.Hour)
	active, err = store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "PN-new", active[0].ID)

	raw, err := backend.Load(ctx, storage.DefaultRecordKey)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "PN-old", "过期订单应从持久化记录中删除")
}

func TestOrderStore_Remove(t *testing.T) {
	ctx := context.Background()
	store, _, clk := newTestStore(t)

	require.NoError(t, store.Save(ctx, domain.NewOrder("PN1", "+15551234567", "wa", 1, domain.OrderStatusPending, clk.Now())))
	require.NoError(t, store.Save(ctx, domain.NewOrder("PN2", "+15557654321", "wa", 1, domain.OrderStatusPending, clk.Now())))

	removed, err := store.Remove(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = store.Remove(ctx, "PN404")
	require.NoError(t, err)
	assert.Zero(t, removed)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "PN2", all[0].ID)
}

func TestOrderStore_Update(t *testing.T) {
	ctx := context.Background()
	store, _, clk := newTestStore(t)
	require.NoError(t, store.Save(ctx, domain.NewOrder("PN1", "+15551234567", "wa", 1, domain.OrderStatusPending, clk.Now())))

	t.Run("有变化时写入", func(t *testing.T) {
		updated, err := store.Update(ctx, "PN1", func(o *domain.Order) (bool, error) {
			o.Code = "4821"
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "4821", updated.Code)

		got, err := store.Get(ctx, "PN1")
		require.NoError(t, err)
		assert.Equal(t, "4821", got.Code)
	})

	t.Run("无变化时跳过写入", func(t *testing.T) {
		_, err := store.Update(ctx, "PN1", func(o *domain.Order) (bool, error) {
			o.Code = "discarded"
			return false, nil
		})
		require.NoError(t, err)

		got, err := store.Get(ctx, "PN1")
		require.NoError(t, err)
		assert.Equal(t, "4821", got.Code)
	})

	t.Run("不会恢复已删除的订单", func(t *testing.T) {
		_, err := store.Update(ctx, "PN404", func(*domain.Order) (bool, error) { return true, nil })
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("回调错误原样返回", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := store.Update(ctx, "PN1", func(*domain.Order) (bool, error) { return true, boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestOrderStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store, _, clk := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := domain.NewOrder(string(rune('a'+i)), "+1555000000"+string(rune('0'+i%10)), "wa", 1, domain.OrderStatusPending, clk.Now())
			assert.NoError(t, store.Save(ctx, order))
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20, "并发写入不能丢失订单")
}

func TestOrderStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	require.NoError(t, backend.Store(ctx, storage.DefaultRecordKey, []byte("{not json")))

	_, err := store.ListActive(ctx)
	assert.Error(t, err)

	raw, err := backend.Load(ctx, storage.DefaultRecordKey)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw), "解析失败时不能覆盖原记录")
}

func TestOrderStore_LegacyRecordFormat(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	record := `{"PN9":{"id":"PN9","phoneNumber":"+46701234567","serviceId":"wa","countryId":46,"status":"READY",` +
		`"createdAt":"2026-03-01T00:00:00Z","expiresAt":"2026-03-31T00:00:00Z"}}`
	require.NoError(t, backend.Store(ctx, storage.DefaultRecordKey, []byte(record)))

	got, err := store.Get(ctx, "PN9")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReady, got.Status)
	assert.Equal(t, 46, got.CountryID)
}
