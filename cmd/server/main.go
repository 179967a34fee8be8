// @title SMS Rent API
// @version 1.0
// @description 虚拟号码租用与短信验证码接收服务
// @BasePath /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "smsrent/backend/docs"
	"smsrent/backend/internal/app"
	"smsrent/backend/internal/config"
	"smsrent/backend/internal/logger"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/service"
)

// main 启动 HTTP API、WebSocket Hub、轮询工作池和定时对账任务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting smsrent server",
		zap.String("storage", cfg.Storage.Type),
		zap.String("stop_policy", cfg.Polling.StopPolicy),
		zap.Duration("poll_interval", cfg.Polling.Interval),
		zap.Strings("global_territories", cfg.Search.GlobalTerritories),
	)

	// promauto 注册到默认注册表
	metrics := monitoring.NewMetrics()

	core, err := app.NewCore(cfg, nil, log, metrics)
	if err != nil {
		log.Fatal("failed to initialize services", zap.Error(err))
	}
	srv := app.NewServer(core)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	core.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		srv.Hub.Run(groupCtx)
		return nil
	})

	// 定时对账 goroutine
	group.Go(func() error {
		runPeriodicSync(groupCtx, core.Service, cfg.Sync, log)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
	}

	if err := core.Close(); err != nil {
		log.Warn("storage close warning", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

// runPeriodicSync 按 sync.interval 与供应商账户对账，interval 为 0 时只执行启动对账。
func runPeriodicSync(ctx context.Context, orders *service.OrderService, cfg config.SyncConfig, log *zap.Logger) {
	syncOnce := func() {
		result, err := orders.Sync(ctx)
		if err != nil {
			log.Error("order sync failed", zap.Error(err))
			return
		}
		log.Info("order sync finished",
			zap.Int("orders", len(result.Orders)),
			zap.Int("imported", result.Imported),
			zap.Int("evicted", result.Evicted),
			zap.Bool("stale", result.Stale),
		)
	}

	if cfg.OnStart {
		syncOnce()
	}
	if cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("starting periodic order sync", zap.Duration("interval", cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("periodic order sync stopped")
			return
		case <-ticker.C:
			syncOnce()
		}
	}
}
