package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smsrent/backend/internal/monitoring"
)

// MonitoringMiddleware 记录 HTTP 指标并兜底 panic。metrics 为 nil 时只做恢复与日志。
type MonitoringMiddleware struct {
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewMonitoringMiddleware 创建监控中间件
func NewMonitoringMiddleware(metrics *monitoring.Metrics, logger *zap.Logger) *MonitoringMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitoringMiddleware{metrics: metrics, logger: logger.Named("http")}
}

// HTTPMetrics 按路由模板统计请求数与耗时，未匹配的路径归入 "unmatched" 以免标签膨胀
func (mm *MonitoringMiddleware) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if mm.metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		mm.metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), time.Since(start))

		switch {
		case status == http.StatusBadGateway:
			mm.metrics.RecordError("provider_error", "http")
		case status >= http.StatusInternalServerError:
			mm.metrics.RecordError("http_error", "http")
		}
	}
}

// PanicRecovery 捕获处理器 panic，返回统一结构的 500
func (mm *MonitoringMiddleware) PanicRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if mm.metrics != nil {
				mm.metrics.RecordPanic()
			}
			mm.logger.Error("panic recovered",
				zap.Any("error", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code": http.StatusInternalServerError,
				"msg":  "internal server error",
			})
		}()
		c.Next()
	}
}
