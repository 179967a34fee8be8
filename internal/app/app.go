// Package app 按配置组装存储、供应商网关、轮询与 HTTP 服务，供 cmd 下的各个入口共用。
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"smsrent/backend/internal/catalog"
	"smsrent/backend/internal/config"
	"smsrent/backend/internal/health"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/pool"
	"smsrent/backend/internal/provider"
	"smsrent/backend/internal/provider/twilio"
	"smsrent/backend/internal/service"
	"smsrent/backend/internal/storage"
	"smsrent/backend/internal/storage/filesystem"
	"smsrent/backend/internal/storage/memory"
	"smsrent/backend/internal/storage/postgres"
	"smsrent/backend/internal/storage/redis"
	sqlstore "smsrent/backend/internal/storage/sql"
	"smsrent/backend/internal/storage/sqlite"
	httptransport "smsrent/backend/internal/transport/http"
	"smsrent/backend/internal/websocket"
)

// OpenBackend 根据 storage.type 打开记录存储后端
func OpenBackend(cfg *config.Config, log *zap.Logger) (storage.Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Storage.Type {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		return filesystem.NewStore(cfg.Storage.Path)
	case "sqlite":
		path := cfg.Storage.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "smsrent.db")
		}
		return sqlite.NewStore(path)
	case "redis":
		return redis.New(&cfg.Redis, log)
	case "sql":
		return sqlstore.NewStore(cfg.Database.Type, cfg.Database.DSN, sqlstore.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
	case "postgres":
		return postgres.New(&cfg.Database, log)
	default:
		return nil, fmt.Errorf("unsupported storage.type %q", cfg.Storage.Type)
	}
}

// Core 不含 HTTP 层的业务组件，CLI 直接使用
type Core struct {
	Config  *config.Config
	Backend storage.Backend
	Orders  *storage.OrderStore
	Catalog *catalog.Catalog
	Gateway *provider.Gateway
	Sync    *service.SyncEngine
	Polls   *service.PollManager
	Service *service.OrderService
	Pool    *pool.WorkerPool
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// NewCore 组装业务组件。client 为 nil 时按配置创建 Twilio 客户端。
func NewCore(cfg *config.Config, client provider.Client, log *zap.Logger, metrics *monitoring.Metrics) (*Core, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewRegistryMetrics()
	}

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	if client == nil {
		client, err = twilio.New(twilio.Config{
			AccountSID: cfg.Provider.AccountSID,
			AuthToken:  cfg.Provider.AuthToken,
			BaseURL:    cfg.Provider.BaseURL,
			Timeout:    cfg.Provider.Timeout,
			RateLimit:  cfg.Provider.RateLimit,
			Burst:      cfg.Provider.Burst,
			PageSize:   cfg.Provider.PageSize,
		}, log, metrics)
		if err != nil {
			return nil, err
		}
	}

	backend, err := OpenBackend(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	clk := clockwork.NewRealClock()
	orders := storage.NewOrderStore(backend, cfg.Storage.RecordKey, clk, log)

	gateway := provider.NewGateway(client, orders, cat, provider.GatewayConfig{
		GlobalTerritories: cfg.Search.GlobalTerritories,
		GlobalLimit:       cfg.Search.GlobalLimit,
		MonthlyPrice:      cfg.Provider.MonthlyPrice,
		CacheTTL:          cfg.Search.CacheTTL,
	}, clk, log, metrics)

	workers := pool.NewWorkerPool(cfg.Polling.MaxConcurrent, cfg.Polling.MaxConcurrent*4, log)
	syncEngine := service.NewSyncEngine(gateway, orders, cat, clk, log, metrics)
	polls := service.NewPollManager(gateway, orders, service.PollerConfig{
		Interval:  cfg.Polling.Interval,
		ClockSkew: cfg.Polling.ClockSkew,
		Policy:    service.StopPolicy(cfg.Polling.StopPolicy),
	}, clk, workers, log, metrics)

	return &Core{
		Config:  cfg,
		Backend: backend,
		Orders:  orders,
		Catalog: cat,
		Gateway: gateway,
		Sync:    syncEngine,
		Polls:   polls,
		Service: service.NewOrderService(gateway, orders, syncEngine, polls, clk, log, metrics),
		Pool:    workers,
		Metrics: metrics,
		Logger:  log,
	}, nil
}

// Start 启动查询工作池
func (c *Core) Start(ctx context.Context) {
	c.Pool.Start(ctx)
}

// Close 停止所有轮询并关闭存储
func (c *Core) Close() error {
	c.Polls.StopAll()
	c.Pool.Stop()
	c.Gateway.Close()
	return c.Backend.Close()
}

// Server HTTP 服务所需的全部组件
type Server struct {
	*Core
	Hub    *websocket.Hub
	Health *health.HealthChecker
	Router *gin.Engine
}

// NewServer 在 Core 之上组装 WebSocket Hub、健康检查与路由
func NewServer(core *Core) *Server {
	hub := websocket.NewHub(core.Config.CORS.AllowedOrigins, core.Service, core.Logger, core.Metrics)
	core.Polls.OnUpdate(hub.NotifyOrderUpdate)

	checker := health.NewHealthChecker(core.Backend, core.Logger)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       core.Config,
		Orders:       core.Service,
		WebSocketHub: hub,
		Health:       checker,
		Metrics:      core.Metrics,
		Logger:       core.Logger,
	})

	return &Server{Core: core, Hub: hub, Health: checker, Router: router}
}
