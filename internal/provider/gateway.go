package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"smsrent/backend/internal/cache"
	"smsrent/backend/internal/catalog"
	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/logger"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/storage"
)

// GatewayConfig 网关策略参数
type GatewayConfig struct {
	GlobalTerritories []string      // 全球搜索依次查询的地区
	GlobalLimit       int           // 全球搜索结果上限
	MonthlyPrice      float64       // 目录未给价格时的统一月租
	CacheTTL          time.Duration // 单地区搜索结果缓存时间
}

// Gateway 在供应商 Client 之上实现搜索回退、全球聚合、购买落库与释放清理。
type Gateway struct {
	client  Client
	orders  storage.OrderRepository
	catalog *catalog.Catalog
	cfg     GatewayConfig
	cache   *cache.LocalCache[[]domain.AvailableNumber]
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewGateway 创建网关
func NewGateway(client Client, orders storage.OrderRepository, cat *catalog.Catalog, cfg GatewayConfig, clk clockwork.Clock, log *zap.Logger, metrics *monitoring.Metrics) *Gateway {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = 20
	}
	g := &Gateway{
		client:  client,
		orders:  orders,
		catalog: cat,
		cfg:     cfg,
		clock:   clk,
		logger:  log.Named("gateway"),
		metrics: metrics,
	}
	if cfg.CacheTTL > 0 {
		g.cache = cache.NewLocalCache[[]domain.AvailableNumber](256, cfg.CacheTTL).WithClock(clk.Now)
	}
	return g
}

// Close 释放缓存的后台协程
func (g *Gateway) Close() {
	if g.cache != nil {
		g.cache.Close()
	}
}

// Search 按目录中的国家 ID 搜索。全球伪国家走 SearchGlobal。
func (g *Gateway) Search(ctx context.Context, countryID int, serviceID string) ([]domain.AvailableNumber, error) {
	if _, err := g.catalog.Service(serviceID); err != nil {
		return nil, err
	}
	country, err := g.catalog.Country(countryID)
	if err != nil {
		return nil, err
	}
	if country.IsGlobal() {
		return g.SearchGlobal(ctx, serviceID)
	}
	return g.SearchTerritory(ctx, country.ISO, serviceID)
}

// SearchTerritory 搜索单个地区的可租号码。
//
// 先查询 Mobile 类别，除鉴权失败外的任何错误都回退一次到 Local 类别。
// Mobile 返回地址登记类错误而 Local 失败或没有支持短信的号码时，返回该错误以便给出提示；
// 其他情况下 Local 返回"不存在"视为没有号码。
// 结果只保留支持短信的号码。
func (g *Gateway) SearchTerritory(ctx context.Context, iso, serviceID string) ([]domain.AvailableNumber, error) {
	iso = strings.ToUpper(iso)
	cacheKey := iso + "|" + serviceID
	if g.cache != nil {
		if cached, ok := g.cache.Get(cacheKey); ok {
			g.metrics.RecordSearchCacheHit()
			return cloneNumbers(cached), nil
		}
	}

	var mobileErr error
	candidates, err := g.client.AvailableNumbers(ctx, iso, ClassMobile)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) || ctx.Err() != nil {
			return nil, err
		}
		mobileErr = err
		g.logger.Debug("mobile numbers unavailable, falling back to local",
			zap.String("iso", iso), zap.Error(mobileErr))

		candidates, err = g.client.AvailableNumbers(ctx, iso, ClassLocal)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrAuth):
				return nil, err
			case errors.Is(mobileErr, domain.ErrRegulatory) && !errors.Is(err, domain.ErrRegulatory):
				return nil, mobileErr
			case errors.Is(err, domain.ErrNotFound):
				candidates = nil
			default:
				return nil, err
			}
		}
	}

	price := g.priceFor(iso)
	numbers := make([]domain.AvailableNumber, 0, len(candidates))
	for _, c := range candidates {
		caps := domain.CapabilitiesFromFlags(c.Capabilities)
		if !caps.SMS {
			continue
		}
		country := c.ISOCountry
		if country == "" {
			country = iso
		}
		numbers = append(numbers, domain.AvailableNumber{
			PhoneNumber:  c.PhoneNumber,
			FriendlyName: c.FriendlyName,
			Country:      strings.ToUpper(country),
			Region:       c.Region,
			Price:        price,
			Capabilities: caps,
			Beta:         c.Beta,
			Type:         domain.PriceTypeMonthly,
		})
	}

	// Local 没有可用号码时保留 Mobile 的地址登记错误
	if len(numbers) == 0 && errors.Is(mobileErr, domain.ErrRegulatory) {
		return nil, mobileErr
	}

	if g.cache != nil {
		g.cache.Set(cacheKey, cloneNumbers(numbers), 0)
	}
	g.metrics.RecordSearch("territory", len(numbers))
	return numbers, nil
}

// SearchGlobal 依次搜索配置的地区并合并结果，达到上限后不再查询后续地区。
// 单个地区失败会被忽略；只有全部地区都因鉴权失败时才返回错误。
func (g *Gateway) SearchGlobal(ctx context.Context, serviceID string) ([]domain.AvailableNumber, error) {
	results := make([]domain.AvailableNumber, 0, g.cfg.GlobalLimit)
	authFailures := 0

	for _, iso := range g.cfg.GlobalTerritories {
		if len(results) >= g.cfg.GlobalLimit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		numbers, err := g.SearchTerritory(ctx, iso, serviceID)
		if err != nil {
			if errors.Is(err, domain.ErrAuth) {
				authFailures++
			}
			g.logger.Warn("territory search failed during global search",
				zap.String("iso", iso), zap.Error(err))
			continue
		}
		results = append(results, numbers...)
	}

	if len(g.cfg.GlobalTerritories) > 0 && authFailures == len(g.cfg.GlobalTerritories) {
		return nil, domain.NewProviderError(domain.ErrAuth, 401, 0, "provider rejected credentials for every territory")
	}
	if len(results) > g.cfg.GlobalLimit {
		results = results[:g.cfg.GlobalLimit]
	}
	g.metrics.RecordSearch("global", len(results))
	return results, nil
}

// BuyNumber 购买号码并以 PENDING 状态落库。countryID 为全球时按号码归属地区解析。
// 供应商购买成功但本地保存失败时返回错误，号码仍归账户所有，下次对账会重新导入。
func (g *Gateway) BuyNumber(ctx context.Context, phoneNumber, serviceID string, countryID int) (*domain.Order, error) {
	if _, err := g.catalog.Service(serviceID); err != nil {
		return nil, err
	}
	if _, err := g.catalog.Country(countryID); err != nil {
		return nil, err
	}
	normalized, err := domain.NormalizePhoneNumber(phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, phoneNumber)
	}

	owned, err := g.client.PurchaseNumber(ctx, normalized)
	if err != nil {
		return nil, err
	}

	confirmed := owned.PhoneNumber
	if confirmed == "" {
		confirmed = normalized
	}
	if countryID == domain.GlobalCountryID {
		countryID = g.catalog.CountryIDForNumber(confirmed)
	}

	order := domain.NewOrder(owned.SID, confirmed, serviceID, countryID, domain.OrderStatusPending, g.clock.Now())
	if err := g.orders.Save(ctx, order); err != nil {
		g.logger.Error("number purchased but order could not be saved",
			zap.String("sid", owned.SID), logger.Phone(confirmed), zap.Error(err))
		return nil, fmt.Errorf("save order %s: %w", owned.SID, err)
	}

	g.metrics.RecordOrderPurchased(serviceID)
	g.logger.Info("number purchased",
		zap.String("order_id", order.ID), logger.Phone(confirmed), zap.String("service", serviceID))
	return order, nil
}

// ReleaseNumber 释放号码。identifier 可以是订单 ID（号码 SID）或号码。
// 本地没有记录的号码会在账户号码列表中查找 SID，账户下也没有时返回 domain.ErrOrderNotFound。
// 供应商返回"不存在"视为成功；成功后删除本地订单。返回被释放订单的快照（状态为 CANCELLED），本地无记录时为 nil。
func (g *Gateway) ReleaseNumber(ctx context.Context, identifier string) (*domain.Order, error) {
	order, err := g.orders.Get(ctx, identifier)
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	sid := identifier
	switch {
	case order != nil:
		sid = order.ID
	case domain.LooksLikePhoneNumber(identifier):
		if sid, err = g.ownedSID(ctx, identifier); err != nil {
			return nil, err
		}
	}

	if err := g.client.ReleaseNumber(ctx, sid); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if _, err := g.orders.Remove(ctx, sid); err != nil {
		return nil, err
	}
	if order != nil && order.PhoneNumber != "" {
		if _, err := g.orders.Remove(ctx, order.PhoneNumber); err != nil {
			return nil, err
		}
	}

	g.metrics.RecordOrderReleased()
	g.logger.Info("number released", zap.String("sid", sid))

	if order == nil {
		return nil, nil
	}
	order.Status = domain.OrderStatusCancelled
	return order, nil
}

// ownedSID 在账户号码中查找号码对应的 SID
func (g *Gateway) ownedSID(ctx context.Context, phone string) (string, error) {
	owned, err := g.client.OwnedNumbers(ctx)
	if err != nil {
		return "", err
	}
	for _, n := range owned {
		if domain.SamePhoneNumber(n.PhoneNumber, phone) {
			return n.SID, nil
		}
	}
	g.logger.Debug("release target not owned by account", logger.Phone(phone))
	return "", domain.ErrOrderNotFound
}

// ListOwnedNumbers 返回供应商账户下的全部号码
func (g *Gateway) ListOwnedNumbers(ctx context.Context) ([]OwnedNumber, error) {
	return g.client.OwnedNumbers(ctx)
}

// ListMessages 返回发往号码、且发送时间不早于 since 的短信。
// 日期无法解析的短信无法判断先后，保留并记录警告。
func (g *Gateway) ListMessages(ctx context.Context, phoneNumber string, since time.Time) ([]domain.Message, error) {
	messages, err := g.client.Messages(ctx, phoneNumber, since)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return messages, nil
	}
	filtered := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Date.IsZero():
			g.logger.Warn("message has no usable date, keeping it",
				zap.String("message_id", m.ID), logger.Phone(phoneNumber))
			filtered = append(filtered, m)
		case !m.Date.Before(since):
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// Catalog 返回网关使用的目录
func (g *Gateway) Catalog() *catalog.Catalog {
	return g.catalog
}

func (g *Gateway) priceFor(iso string) float64 {
	if country, ok := g.catalog.CountryByISO(iso); ok && country.Price > 0 {
		return country.Price
	}
	return g.cfg.MonthlyPrice
}

func cloneNumbers(in []domain.AvailableNumber) []domain.AvailableNumber {
	out := make([]domain.AvailableNumber, len(in))
	copy(out, in)
	return out
}
