package service

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"smsrent/backend/internal/catalog"
	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/logger"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/provider"
	"smsrent/backend/internal/storage"
)

// OwnedNumberLister 对账所需的供应商能力
type OwnedNumberLister interface {
	ListOwnedNumbers(ctx context.Context) ([]provider.OwnedNumber, error)
}

// SyncResult 一次对账的结果
type SyncResult struct {
	Orders   []domain.Order `json:"orders"`
	Imported int            `json:"imported"`
	Evicted  int            `json:"evicted"`
	Stale    bool           `json:"stale"` // 供应商不可用，Orders 为未改动的本地数据
}

// SyncEngine 以供应商持有的号码为准，对账本地订单。
type SyncEngine struct {
	provider OwnedNumberLister
	orders   storage.OrderRepository
	catalog  *catalog.Catalog
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewSyncEngine 创建对账引擎
func NewSyncEngine(p OwnedNumberLister, orders storage.OrderRepository, cat *catalog.Catalog, clk clockwork.Clock, log *zap.Logger, metrics *monitoring.Metrics) *SyncEngine {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncEngine{
		provider: p,
		orders:   orders,
		catalog:  cat,
		clock:    clk,
		logger:   log.Named("sync"),
		metrics:  metrics,
	}
}

// Sync 拉取供应商号码列表并对账：
//   - 本地已有的订单原样保留；
//   - 本地没有的号码以 READY 状态导入，创建时间取当前时间，之前的短信不会被投递；
//   - 供应商已不再持有的本地订单被删除。
//
// 供应商调用失败时不做任何修改，返回本地现有订单并标记 Stale。
func (e *SyncEngine) Sync(ctx context.Context) (*SyncResult, error) {
	remote, err := e.provider.ListOwnedNumbers(ctx)
	if err != nil {
		e.logger.Warn("owned numbers unavailable, keeping local orders", zap.Error(err))
		e.metrics.RecordSync("stale", 0, 0)
		local, lerr := e.orders.List(ctx)
		if lerr != nil {
			return nil, lerr
		}
		return &SyncResult{Orders: local, Stale: true}, nil
	}

	now := e.clock.Now()
	result := &SyncResult{}

	err = e.orders.Mutate(ctx, func(orders map[string]*domain.Order) error {
		remoteIDs := make(map[string]struct{}, len(remote))
		for _, n := range remote {
			remoteIDs[n.SID] = struct{}{}
		}

		for key, order := range orders {
			if _, ok := remoteIDs[order.ID]; ok {
				continue
			}
			if _, ok := remoteIDs[key]; ok {
				continue
			}
			delete(orders, key)
			result.Evicted++
			e.logger.Info("evicted order no longer owned",
				zap.String("order_id", order.ID), logger.Phone(order.PhoneNumber))
		}

		for _, n := range remote {
			if n.SID == "" || holds(orders, n.SID) {
				continue
			}
			countryID := domain.GlobalCountryID
			if e.catalog != nil {
				countryID = e.catalog.CountryIDForNumber(n.PhoneNumber)
			}
			orders[n.SID] = domain.NewOrder(n.SID, n.PhoneNumber, domain.UnknownServiceID, countryID, domain.OrderStatusReady, now)
			result.Imported++
			e.logger.Info("imported owned number",
				zap.String("order_id", n.SID), logger.Phone(n.PhoneNumber))
		}

		result.Orders = make([]domain.Order, 0, len(orders))
		for _, order := range orders {
			result.Orders = append(result.Orders, *order)
		}
		return nil
	})
	if err != nil {
		e.metrics.RecordSync("error", 0, 0)
		return nil, err
	}

	domain.SortOrders(result.Orders)
	e.metrics.RecordSync("ok", result.Imported, result.Evicted)
	e.logger.Debug("sync finished",
		zap.Int("orders", len(result.Orders)),
		zap.Int("imported", result.Imported),
		zap.Int("evicted", result.Evicted))
	return result, nil
}

func holds(orders map[string]*domain.Order, sid string) bool {
	if _, ok := orders[sid]; ok {
		return true
	}
	for _, order := range orders {
		if order.ID == sid {
			return true
		}
	}
	return false
}
