package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探活的依赖，存储后端实现此接口
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health  healthcheck.Handler
	checks  map[string]Pinger
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthChecker 创建健康检查器。存储后端作为就绪检查，协程数作为存活检查。
func NewHealthChecker(storage Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health:  healthcheck.NewHandler(),
		checks:  make(map[string]Pinger),
		timeout: 3 * time.Second,
		logger:  logger,
	}
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
	if storage != nil {
		hc.AddReadinessCheck("storage", storage)
	}
	return hc
}

// AddReadinessCheck 添加就绪检查
func (hc *HealthChecker) AddReadinessCheck(name string, p Pinger) {
	hc.checks[name] = p
	hc.health.AddReadinessCheck(name, PingCheck(p, hc.timeout))
}

// Handler 返回健康检查处理器，提供 /live 与 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行全部就绪检查，返回每项结果
func (hc *HealthChecker) CheckHealth(ctx context.Context) map[string]string {
	results := make(map[string]string, len(hc.checks)+1)
	for name, p := range hc.checks {
		checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		err := p.Health(checkCtx)
		cancel()
		if err != nil {
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = "ERROR: " + err.Error()
			continue
		}
		results[name] = "OK"
	}
	results["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return results
}

// Healthy 所有就绪检查都通过
func Healthy(results map[string]string) bool {
	for name, v := range results {
		if name != "timestamp" && v != "OK" {
			return false
		}
	}
	return true
}

// PingCheck 将 Pinger 包装为 healthcheck.Check
func PingCheck(p Pinger, timeout time.Duration) healthcheck.Check {
	return healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Health(ctx)
	}, timeout)
}
