package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"smsrent/backend/internal/config"
	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/otp"
	"smsrent/backend/internal/storage"
)

// StopPolicy 收到验证码后的轮询策略
type StopPolicy string

const (
	StopOnFirstCode  StopPolicy = config.StopPolicyFirstCode  // 首个验证码后停止
	PollContinuously StopPolicy = config.StopPolicyContinuous // 持续轮询直到过期或取消
)

// PollState 轮询器状态
type PollState string

const (
	PollStateIdle      PollState = "IDLE"
	PollStatePolling   PollState = "POLLING"
	PollStateCompleted PollState = "COMPLETED"
	PollStateStopped   PollState = "STOPPED"
)

// MessageLister 轮询所需的供应商能力
type MessageLister interface {
	ListMessages(ctx context.Context, phoneNumber string, since time.Time) ([]domain.Message, error)
}

// Runner 执行节拍的调度器，通常是 pool.WorkerPool
type Runner interface {
	Do(ctx context.Context, task func()) error
}

// PollerConfig 轮询参数
type PollerConfig struct {
	Interval  time.Duration
	ClockSkew time.Duration
	Policy    StopPolicy
}

// TickResult 一次轮询节拍的结果
type TickResult struct {
	Order       *domain.Order
	NewMessages int
	CodeFound   bool
	Done        bool // 轮询器应当结束
}

// Poller 单个订单的轮询器。节拍串行执行，同一订单的两次节拍不会重叠。
type Poller struct {
	orderID  string
	messages MessageLister
	orders   storage.OrderRepository
	cfg      PollerConfig
	clock    clockwork.Clock
	runner   Runner
	onUpdate func(domain.Order)
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu     sync.Mutex
	state  PollState
	cancel context.CancelFunc
	done   chan struct{}
}

func newPoller(orderID string, deps pollDeps) *Poller {
	return &Poller{
		orderID:  orderID,
		messages: deps.messages,
		orders:   deps.orders,
		cfg:      deps.cfg,
		clock:    deps.clock,
		runner:   deps.runner,
		onUpdate: deps.onUpdate,
		logger:   deps.logger.With(zap.String("order_id", orderID)),
		metrics:  deps.metrics,
		state:    PollStateIdle,
		done:     make(chan struct{}),
	}
}

// OrderID 返回轮询的订单 ID
func (p *Poller) OrderID() string {
	return p.orderID
}

// State 返回当前状态
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done 轮询结束后关闭
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Start 检查订单是否需要轮询，需要则在后台按间隔轮询直到结束或 Stop。
// 已有验证码（首码即停策略）或已过期的订单不会进入 POLLING。
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != PollStateIdle {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	order, err := p.orders.Get(ctx, p.orderID)
	if err != nil {
		p.finish(PollStateStopped)
		return err
	}
	if order.IsExpired(p.clock.Now()) {
		p.markExpired(ctx)
		p.finish(PollStateStopped)
		return nil
	}
	if order.Code != "" && p.cfg.Policy != PollContinuously {
		p.finish(PollStateCompleted)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.state = PollStatePolling
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(runCtx)
	return nil
}

// Stop 取消轮询并等待后台协程退出，之后不会再访问供应商
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	state := p.state
	p.mu.Unlock()

	if cancel == nil {
		if state == PollStateIdle {
			p.finish(PollStateStopped)
		}
		return
	}
	cancel()
	<-p.done
}

func (p *Poller) loop(ctx context.Context) {
	final := PollStateStopped
	defer func() { p.finish(final) }()

	if res := p.step(ctx); res.Done {
		final = p.terminalState(res)
		return
	}

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if res := p.step(ctx); res.Done {
				final = p.terminalState(res)
				return
			}
		}
	}
}

func (p *Poller) terminalState(res TickResult) PollState {
	if res.Order != nil && res.Order.Code != "" && res.Order.Status != domain.OrderStatusExpired {
		return PollStateCompleted
	}
	return PollStateStopped
}

// step 通过 runner 执行一次节拍，供应商错误只记录日志，等待下次重试
func (p *Poller) step(ctx context.Context) TickResult {
	var (
		res TickResult
		err error
	)
	if p.runner == nil {
		res, err = p.Tick(ctx)
	} else if rerr := p.runner.Do(ctx, func() { res, err = p.Tick(ctx) }); rerr != nil {
		return TickResult{Done: ctx.Err() != nil}
	}
	if err != nil && !res.Done && ctx.Err() == nil {
		p.logger.Debug("poll tick failed, retrying on next tick", zap.Error(err))
	}
	return res
}

// Tick 执行一次轮询：拉取新短信、去重合并、提取验证码并保存。
// 订单不存在或已过期时 Done 为 true；供应商错误原样返回，不改变订单状态。
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	order, err := p.orders.Get(ctx, p.orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		p.metrics.RecordPollTick("order_gone", 0, false)
		return TickResult{Done: true}, err
	}
	if err != nil {
		p.metrics.RecordPollTick("store_error", 0, false)
		return TickResult{}, err
	}

	if order.IsExpired(p.clock.Now()) {
		expired := p.markExpired(ctx)
		if expired == nil {
			expired = order
		}
		p.metrics.RecordPollTick("expired", 0, false)
		return TickResult{Order: expired, Done: true}, nil
	}

	since := order.CreatedAt.Add(-p.cfg.ClockSkew)
	batch, err := p.messages.ListMessages(ctx, order.PhoneNumber, since)
	if err != nil {
		p.metrics.RecordPollTick("provider_error", 0, false)
		return TickResult{Order: order}, err
	}

	var (
		added     int
		codeFound bool
	)
	updated, err := p.orders.Update(ctx, order.ID, func(o *domain.Order) (bool, error) {
		prevCode, prevStatus := o.Code, o.Status
		added = o.Ingest(batch, otp.Extract)
		codeFound = added > 0 && o.Code != "" &&
			(o.Code != prevCode || prevStatus != domain.OrderStatusCompleted)
		return added > 0, nil
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		p.metrics.RecordPollTick("order_gone", 0, false)
		return TickResult{Done: true}, err
	}
	if err != nil {
		p.metrics.RecordPollTick("store_error", 0, false)
		return TickResult{Order: order}, err
	}

	p.metrics.RecordPollTick("ok", added, codeFound)
	if added > 0 {
		p.logger.Debug("new messages received", zap.Int("count", added), zap.Bool("code_found", codeFound))
		if p.onUpdate != nil {
			p.onUpdate(*updated)
		}
	}
	if codeFound {
		p.logger.Info("verification code received")
	}

	return TickResult{
		Order:       updated,
		NewMessages: added,
		CodeFound:   codeFound,
		Done:        updated.Code != "" && p.cfg.Policy != PollContinuously,
	}, nil
}

// markExpired 将订单状态置为 EXPIRED，返回更新后的订单
func (p *Poller) markExpired(ctx context.Context) *domain.Order {
	order, err := p.orders.Update(ctx, p.orderID, func(o *domain.Order) (bool, error) {
		if o.Status == domain.OrderStatusExpired {
			return false, nil
		}
		o.Status = domain.OrderStatusExpired
		return true, nil
	})
	if err != nil {
		p.logger.Debug("mark order expired failed", zap.Error(err))
		return nil
	}
	if p.onUpdate != nil {
		p.onUpdate(*order)
	}
	return order
}

func (p *Poller) finish(state PollState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
	}
	p.state = state
	close(p.done)
}

// ========== 轮询管理 ==========

type pollDeps struct {
	messages MessageLister
	orders   storage.OrderRepository
	cfg      PollerConfig
	clock    clockwork.Clock
	runner   Runner
	onUpdate func(domain.Order)
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// PollManager 保证每个订单最多一个轮询器
type PollManager struct {
	cfg PollerConfig

	messages MessageLister
	orders   storage.OrderRepository
	clock    clockwork.Clock
	runner   Runner
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	pollers  map[string]*Poller
	onUpdate func(domain.Order)
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPollManager 创建轮询管理器。runner 为 nil 时节拍在轮询器协程内直接执行。
func NewPollManager(messages MessageLister, orders storage.OrderRepository, cfg PollerConfig, clk clockwork.Clock, runner Runner, log *zap.Logger, metrics *monitoring.Metrics) *PollManager {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.Policy == "" {
		cfg.Policy = StopOnFirstCode
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollManager{
		cfg:      cfg,
		messages: messages,
		orders:   orders,
		clock:    clk,
		runner:   runner,
		logger:   log.Named("poller"),
		metrics:  metrics,
		pollers:  make(map[string]*Poller),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnUpdate 设置订单变化回调（新短信、验证码、过期、释放）
func (m *PollManager) OnUpdate(fn func(domain.Order)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Publish 通知订单变化
func (m *PollManager) Publish(order domain.Order) {
	m.mu.Lock()
	fn := m.onUpdate
	m.mu.Unlock()
	if fn != nil {
		fn(order)
	}
}

// Policy 返回当前停止策略
func (m *PollManager) Policy() StopPolicy {
	return m.cfg.Policy
}

// Watch 开始轮询订单（ID 或号码）。已在轮询的订单返回现有轮询器。
// 返回的轮询器可能已处于终态（已有验证码或已过期）。
func (m *PollManager) Watch(ctx context.Context, idOrPhone string) (*Poller, error) {
	order, err := m.orders.Get(ctx, idOrPhone)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.pollers[order.ID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	p := m.newPollerLocked(order.ID)
	m.pollers[order.ID] = p
	m.mu.Unlock()

	if err := p.Start(m.ctx); err != nil {
		m.forget(p)
		return nil, err
	}
	if p.State() != PollStatePolling {
		m.forget(p)
		return p, nil
	}

	m.metrics.UpdatePollersActive(m.count())
	m.logger.Debug("poller started", zap.String("order_id", order.ID))

	go func() {
		<-p.Done()
		m.forget(p)
		m.logger.Debug("poller finished", zap.String("order_id", p.orderID), zap.String("state", string(p.State())))
	}()
	return p, nil
}

// Unwatch 停止订单的轮询器，未在轮询时无操作
func (m *PollManager) Unwatch(orderID string) {
	m.mu.Lock()
	p, ok := m.pollers[orderID]
	m.mu.Unlock()
	if !ok {
		return
	}
	p.Stop()
	m.forget(p)
}

// PollOnce 立即对订单执行一次节拍，不影响后台轮询器
func (m *PollManager) PollOnce(ctx context.Context, idOrPhone string) (TickResult, error) {
	order, err := m.orders.Get(ctx, idOrPhone)
	if err != nil {
		return TickResult{}, err
	}
	m.mu.Lock()
	p := m.newPollerLocked(order.ID)
	m.mu.Unlock()
	return p.Tick(ctx)
}

// Poller 返回订单当前的轮询器
func (m *PollManager) Poller(orderID string) (*Poller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pollers[orderID]
	return p, ok
}

// Active 返回正在轮询的订单 ID
func (m *PollManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pollers))
	for id := range m.pollers {
		ids = append(ids, id)
	}
	return ids
}

// StopAll 停止所有轮询器，之后的 Watch 不会再启动轮询
func (m *PollManager) StopAll() {
	m.cancel()
	m.mu.Lock()
	pollers := make([]*Poller, 0, len(m.pollers))
	for _, p := range m.pollers {
		pollers = append(pollers, p)
	}
	m.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
		m.forget(p)
	}
}

func (m *PollManager) newPollerLocked(orderID string) *Poller {
	return newPoller(orderID, pollDeps{
		messages: m.messages,
		orders:   m.orders,
		cfg:      m.cfg,
		clock:    m.clock,
		runner:   m.runner,
		onUpdate: m.Publish,
		logger:   m.logger,
		metrics:  m.metrics,
	})
}

func (m *PollManager) forget(p *Poller) {
	m.mu.Lock()
	if current, ok := m.pollers[p.orderID]; ok && current == p {
		delete(m.pollers, p.orderID)
	}
	n := len(m.pollers)
	m.mu.Unlock()
	m.metrics.UpdatePollersActive(n)
}

func (m *PollManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pollers)
}
