package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"smsrent/backend/internal/domain"
)

// OrderStore 将全部订单序列化为一条 JSON 记录（id -> order）保存在 Backend 中。
// 读改写在进程内互斥，过期订单在读取活动列表时惰性清理。
type OrderStore struct {
	mu      sync.Mutex
	backend Backend
	key     string
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewOrderStore 创建订单存储。key 为空时使用 DefaultRecordKey。
func NewOrderStore(backend Backend, key string, clk clockwork.Clock, logger *zap.Logger) *OrderStore {
	if key == "" {
		key = DefaultRecordKey
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderStore{backend: backend, key: key, clock: clk, logger: logger}
}

// Save 插入或覆盖订单。传入的订单会先被规范化（UTC 时间、空短信列表为 nil），保存后读回的结果与之相同。
func (s *OrderStore) Save(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return domain.ErrOrderIDRequired
	}
	order.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	copied := *order
	orders[order.ID] = &copied
	return s.storeLocked(ctx, orders)
}

// Get 按 ID 或号码查找订单，不做过期过滤。
func (s *OrderStore) Get(ctx context.Context, idOrPhone string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	if _, order := lookup(orders, idOrPhone); order != nil {
		return order, nil
	}
	return nil, domain.ErrOrderNotFound
}

// List 返回全部订单（创建时间倒序），不修改存储。
func (s *OrderStore) List(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return flatten(orders), nil
}

// ListActive 删除已过期订单并写回，返回剩余订单（创建时间倒序）。
func (s *OrderStore) ListActive(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	pruned := 0
	for key, order := range orders {
		if order.IsExpired(now) {
			delete(orders, key)
			pruned++
		}
	}
	if pruned > 0 {
		if err := s.storeLocked(ctx, orders); err != nil {
			return nil, err
		}
		s.logger.Debug("pruned expired orders", zap.Int("count", pruned))
	}
	return flatten(orders), nil
}

// Remove 删除键、ID 或号码匹配的所有订单，返回删除数量。
func (s *OrderStore) Remove(ctx context.Context, idOrPhone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for key, order := range orders {
		if key == idOrPhone || matches(order, idOrPhone) {
			delete(orders, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.storeLocked(ctx, orders)
}

// Update 读改写单个订单。订单不存在时返回 ErrOrderNotFound，不会重新创建。
func (s *OrderStore) Update(ctx context.Context, id string, fn func(order *domain.Order) (bool, error)) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	key, order := lookup(orders, id)
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	changed, err := fn(order)
	if err != nil {
		return nil, err
	}
	if changed {
		orders[key] = order
		if err := s.storeLocked(ctx, orders); err != nil {
			return nil, err
		}
	}
	result := *order
	return &result, nil
}

// Mutate 读改写整张订单表。fn 返回错误时不写回。
func (s *OrderStore) Mutate(ctx context.Context, fn func(orders map[string]*domain.Order) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(orders); err != nil {
		return err
	}
	return s.storeLocked(ctx, orders)
}

func (s *OrderStore) loadLocked(ctx context.Context) (map[string]*domain.Order, error) {
	data, err := s.backend.Load(ctx, s.key)
	if errors.Is(err, ErrRecordNotFound) {
		return make(map[string]*domain.Order), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	orders := make(map[string]*domain.Order)
	if len(strings.TrimSpace(string(data))) == 0 {
		return orders, nil
	}
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	for key, order := range orders {
		if order == nil {
			delete(orders, key)
		}
	}
	return orders, nil
}

func (s *OrderStore) storeLocked(ctx context.Context, orders map[string]*domain.Order) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	if err := s.backend.Store(ctx, s.key, data); err != nil {
		return fmt.Errorf("store orders: %w", err)
	}
	return nil
}

// lookup 先按键精确匹配，再按订单 ID 或号码匹配。
func lookup(orders map[string]*domain.Order, idOrPhone string) (string, *domain.Order) {
	if order, ok := orders[idOrPhone]; ok {
		return idOrPhone, order
	}
	for key, order := range orders {
		if matches(order, idOrPhone) {
			return key, order
		}
	}
	return "", nil
}

func matches(order *domain.Order, idOrPhone string) bool {
	if idOrPhone == "" {
		return false
	}
	if order.ID == idOrPhone || order.PhoneNumber == idOrPhone {
		return true
	}
	return domain.LooksLikePhoneNumber(idOrPhone) && domain.SamePhoneNumber(order.PhoneNumber, idOrPhone)
}

func flatten(orders map[string]*domain.Order) []domain.Order {
	out := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, *order)
	}
	domain.SortOrders(out)
	return out
}
