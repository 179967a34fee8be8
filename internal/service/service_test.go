package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/catalog"
	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/provider"
	"smsrent/backend/internal/provider/providertest"
	"smsrent/backend/internal/storage"
	"smsrent/backend/internal/storage/memory"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	clock   *clockwork.FakeClock
	fake    *providertest.Fake
	orders  *storage.OrderStore
	gateway *provider.Gateway
	sync    *SyncEngine
	polls   *PollManager
	service *OrderService
}

func newTestEnv(t *testing.T, policy StopPolicy, runner Runner) *testEnv {
	t.Helper()
	clk := clockwork.NewFakeClockAt(testStart)
	fake := providertest.New()
	orders := storage.NewOrderStore(memory.NewStore(), "", clk, nil)
	cat := catalog.Default()
	gw := provider.NewGateway(fake, orders, cat, provider.GatewayConfig{
		GlobalTerritories: []string{"US", "SE"},
		GlobalLimit:       20,
		MonthlyPrice:      catalog.DefaultPrice,
	}, clk, nil, nil)
	t.Cleanup(gw.Close)

	syncEngine := NewSyncEngine(gw, orders, cat, clk, nil, nil)
	polls := NewPollManager(gw, orders, PollerConfig{
		Interval:  3 * time.Second,
		ClockSkew: time.Minute,
		Policy:    policy,
	}, clk, runner, nil, nil)
	t.Cleanup(polls.StopAll)

	return &testEnv{
		clock:   clk,
		fake:    fake,
		orders:  orders,
		gateway: gw,
		sync:    syncEngine,
		polls:   polls,
		service: NewOrderService(gw, orders, syncEngine, polls, clk, nil, nil),
	}
}

// waitForTickers 等待时钟上恰好有 n 个活动的 ticker
func waitForTickers(clk *clockwork.FakeClock, n int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return clk.BlockUntilContext(ctx, n) == nil
}

// seed 保存一个订单并在供应商侧登记号码
func (e *testEnv) seed(t *testing.T, id, phone, serviceID string, countryID int) *domain.Order {
	t.Helper()
	order := domain.NewOrder(id, phone, serviceID, countryID, domain.OrderStatusPending, e.clock.Now())
	require.NoError(t, e.orders.Save(context.Background(), order))
	e.fake.AddOwned(id, phone)
	return order
}

func sms(id, body string, at time.Time) domain.Message {
	return domain.Message{ID: id, Body: body, Date: at, Sender: "+15550001111", Status: "received"}
}

// MockOrderRepository 模拟订单仓储
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) Get(ctx context.Context, idOrPhone string) (*domain.Order, error) {
	args := m.Called(ctx, idOrPhone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderRepository) ListActive(ctx context.Context) ([]domain.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderRepository) Remove(ctx context.Context, idOrPhone string) (int, error) {
	args := m.Called(ctx, idOrPhone)
	return args.Int(0), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, id string, fn func(order *domain.Order) (bool, error)) (*domain.Order, error) {
	args := m.Called(ctx, id, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) Mutate(ctx context.Context, fn func(orders map[string]*domain.Order) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}
