package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标。所有 Record/Update 方法允许在 nil 接收者上调用，便于测试中省略指标。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 供应商调用指标
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// 订单指标
	OrdersPurchased *prometheus.CounterVec
	OrdersReleased  prometheus.Counter
	OrdersImported  prometheus.Counter
	OrdersEvicted   prometheus.Counter
	OrdersActive    prometheus.Gauge

	// 搜索指标
	SearchResults   *prometheus.HistogramVec
	SearchCacheHits prometheus.Counter

	// 轮询指标
	PollTicksTotal   *prometheus.CounterVec
	PollersActive    prometheus.Gauge
	MessagesIngested prometheus.Counter
	CodesExtracted   prometheus.Counter

	// 对账指标
	SyncRunsTotal *prometheus.CounterVec

	// WebSocket 指标
	WebSocketClients prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics 创建监控指标并注册到默认注册表
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewRegistryMetrics 使用独立注册表创建监控指标，可重复创建
func NewRegistryMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith 注册到指定的注册表
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsrent_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smsrent_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		ProviderRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsrent_provider_requests_total",
			Help: "Total number of provider API requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		ProviderRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smsrent_provider_request_duration_seconds",
			Help:    "Provider API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"operation"}),

		OrdersPurchased: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsrent_orders_purchased_total",
			Help: "Total number of purchased numbers by service",
		}, []string{"service"}),
		OrdersReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "smsrent_orders_released_total",
			Help: "Total number of released numbers",
		}),
		OrdersImported: f.NewCounter(prometheus.CounterOpts{
			Name: "smsrent_orders_imported_total",
			Help: "Total number of orders imported from the provider account",
		}),
		OrdersEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "smsrent_orders_evicted_total",
			Help: "Total number of local orders evicted because the provider no longer owns them",
		}),
		OrdersActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "smsrent_orders_active",
			Help: "Number of non-expired orders",
		}),

		SearchResults: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smsrent_search_results",
			Help:    "Number of numbers returned per search",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 50},
		}, []string{"scope"}),
		SearchCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "smsrent_search_cache_hits_total",
			Help: "Total number of territory searches served from cache",
		}),

		PollTicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsrent_poll_ticks_total",
			Help: "Total number of poll iterations by outcome",
		}, []string{"outcome"}),
		PollersActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "smsrent_pollers_active",
			Help: "Number of running pollers",
		}),
		MessagesIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "smsrent_messages_ingested_total",
			Help: "Total number of new SMS messages stored",
		}),
		CodesExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "smsrent_codes_extracted_total",
			Help: "Total number of verification codes extracted",
		}),

		SyncRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsrent_sync_runs_total",
			Help: "Total number of reconciliation runs by outcome",
		}, []string{"outcome"}),

		WebSocketClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "smsrent_websocket_clients",
			Help: "Number of connected WebSocket clients",
		}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smsrent_errors_total",
			Help: "Total number of errors",
		}, []string{"type", "component"}),
		PanicsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "smsrent_panics_total",
			Help: "Total number of recovered panics",
		}),

		gatherer: gatherer,
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProviderRequest 记录供应商请求
func (m *Metrics) RecordProviderRequest(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOrderPurchased 记录号码购买
func (m *Metrics) RecordOrderPurchased(service string) {
	if m == nil {
		return
	}
	m.OrdersPurchased.WithLabelValues(service).Inc()
}

// RecordOrderReleased 记录号码释放
func (m *Metrics) RecordOrderReleased() {
	if m == nil {
		return
	}
	m.OrdersReleased.Inc()
}

// RecordSync 记录一次对账
func (m *Metrics) RecordSync(outcome string, imported, evicted int) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(outcome).Inc()
	m.OrdersImported.Add(float64(imported))
	m.OrdersEvicted.Add(float64(evicted))
}

// UpdateOrdersActive 更新活动订单数
func (m *Metrics) UpdateOrdersActive(count int) {
	if m == nil {
		return
	}
	m.OrdersActive.Set(float64(count))
}

// RecordSearch 记录搜索结果数量
func (m *Metrics) RecordSearch(scope string, results int) {
	if m == nil {
		return
	}
	m.SearchResults.WithLabelValues(scope).Observe(float64(results))
}

// RecordSearchCacheHit 记录搜索缓存命中
func (m *Metrics) RecordSearchCacheHit() {
	if m == nil {
		return
	}
	m.SearchCacheHits.Inc()
}

// RecordPollTick 记录一次轮询及其结果
func (m *Metrics) RecordPollTick(outcome string, newMessages int, codeFound bool) {
	if m == nil {
		return
	}
	m.PollTicksTotal.WithLabelValues(outcome).Inc()
	m.MessagesIngested.Add(float64(newMessages))
	if codeFound {
		m.CodesExtracted.Inc()
	}
}

// UpdatePollersActive 更新运行中的轮询器数量
func (m *Metrics) UpdatePollersActive(count int) {
	if m == nil {
		return
	}
	m.PollersActive.Set(float64(count))
}

// UpdateWebSocketClients 更新 WebSocket 连接数
func (m *Metrics) UpdateWebSocketClients(count int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Set(float64(count))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
