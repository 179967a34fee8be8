package service

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/provider"
	"smsrent/backend/internal/storage"
)

// OrderService 汇总目录查询、号码搜索购买、订单查看释放、对账与轮询，供 HTTP 和 CLI 共用。
type OrderService struct {
	gateway *provider.Gateway
	orders  storage.OrderRepository
	sync    *SyncEngine
	polls   *PollManager
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewOrderService 创建订单服务
func NewOrderService(gateway *provider.Gateway, orders storage.OrderRepository, syncEngine *SyncEngine, polls *PollManager, clk clockwork.Clock, log *zap.Logger, metrics *monitoring.Metrics) *OrderService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		gateway: gateway,
		orders:  orders,
		sync:    syncEngine,
		polls:   polls,
		clock:   clk,
		logger:  log,
		metrics: metrics,
	}
}

// Countries 返回可选国家
func (s *OrderService) Countries() []domain.Country {
	return s.gateway.Catalog().Countries()
}

// Services 返回可选服务
func (s *OrderService) Services() []domain.Service {
	return s.gateway.Catalog().Services()
}

// Search 搜索可租号码
func (s *OrderService) Search(ctx context.Context, countryID int, serviceID string) ([]domain.AvailableNumber, error) {
	return s.gateway.Search(ctx, countryID, strings.ToLower(strings.TrimSpace(serviceID)))
}

// BuyOrderInput 购买号码的输入
type BuyOrderInput struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	ServiceID   string `json:"serviceId" binding:"required"`
	CountryID   int    `json:"countryId"`
}

// Buy 购买号码并创建 PENDING 订单
func (s *OrderService) Buy(ctx context.Context, input BuyOrderInput) (*domain.Order, error) {
	serviceID := strings.ToLower(strings.TrimSpace(input.ServiceID))
	order, err := s.gateway.BuyNumber(ctx, strings.TrimSpace(input.PhoneNumber), serviceID, input.CountryID)
	if err != nil {
		return nil, err
	}
	s.polls.Publish(*order)
	return order, nil
}

// Get 按订单 ID 或号码查找
func (s *OrderService) Get(ctx context.Context, idOrPhone string) (*domain.Order, error) {
	if strings.TrimSpace(idOrPhone) == "" {
		return nil, domain.ErrOrderIDRequired
	}
	return s.orders.Get(ctx, strings.TrimSpace(idOrPhone))
}

// ListActive 返回未过期订单，最新在前
func (s *OrderService) ListActive(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.UpdateOrdersActive(len(orders))
	return orders, nil
}

// Release 释放号码，停止其轮询并通知订阅者
func (s *OrderService) Release(ctx context.Context, idOrPhone string) (*domain.Order, error) {
	if strings.TrimSpace(idOrPhone) == "" {
		return nil, domain.ErrOrderIDRequired
	}
	released, err := s.gateway.ReleaseNumber(ctx, strings.TrimSpace(idOrPhone))
	if err != nil {
		return nil, err
	}
	if released != nil {
		s.polls.Unwatch(released.ID)
		s.polls.Publish(*released)
	}
	return released, nil
}

// Sync 与供应商对账
func (s *OrderService) Sync(ctx context.Context) (*SyncResult, error) {
	result, err := s.sync.Sync(ctx)
	if err != nil {
		return nil, err
	}
	if !result.Stale {
		s.metrics.UpdateOrdersActive(countActive(result.Orders, s.clock))
	}
	return result, nil
}

// PollOnce 立即轮询一次订单
func (s *OrderService) PollOnce(ctx context.Context, idOrPhone string) (*domain.Order, error) {
	res, err := s.polls.PollOnce(ctx, strings.TrimSpace(idOrPhone))
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Watch 开始后台轮询订单
func (s *OrderService) Watch(ctx context.Context, idOrPhone string) (*Poller, error) {
	return s.polls.Watch(ctx, strings.TrimSpace(idOrPhone))
}

// Unwatch 停止订单的后台轮询
func (s *OrderService) Unwatch(orderID string) {
	s.polls.Unwatch(orderID)
}

// Polls 返回轮询管理器
func (s *OrderService) Polls() *PollManager {
	return s.polls
}

// Now 返回服务时钟的当前时间
func (s *OrderService) Now() time.Time {
	return s.clock.Now()
}

func countActive(orders []domain.Order, clk clockwork.Clock) int {
	now := clk.Now()
	n := 0
	for i := range orders {
		if !orders[i].IsExpired(now) {
			n++
		}
	}
	return n
}
