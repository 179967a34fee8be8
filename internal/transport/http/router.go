package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"smsrent/backend/internal/config"
	"smsrent/backend/internal/health"
	"smsrent/backend/internal/middleware"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/service"
	"smsrent/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	Orders       *service.OrderService
	WebSocketHub *websocket.Hub
	Health       *health.HealthChecker
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	router := gin.New()

	mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(mm.PanicRecovery())
	router.Use(mm.HTTPMetrics())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 未配置或允许所有来源时不支持凭证。
	allowAll := len(corsConfig.AllowOrigins) == 0
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	if allowAll {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(gincors.New(corsConfig))

	handler := NewOrderHandler(deps.Orders, deps.Logger)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查与指标
	router.GET("/health", handler.healthSummary(deps.Health))
	if deps.Health != nil {
		healthHandler := gin.WrapH(http.StripPrefix("/health", deps.Health.Handler()))
		router.GET("/health/live", healthHandler)
		router.GET("/health/ready", healthHandler)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		catalogRoutes := v1.Group("/catalog")
		{
			catalogRoutes.GET("/countries", handler.listCountries)
			catalogRoutes.GET("/services", handler.listServices)
		}

		v1.GET("/numbers", handler.searchNumbers)

		orderRoutes := v1.Group("/orders")
		{
			orderRoutes.POST("", handler.createOrder)
			orderRoutes.GET("", handler.listOrders)
			orderRoutes.POST("/sync", handler.syncOrders)
			orderRoutes.GET("/:id", handler.getOrder)
			orderRoutes.DELETE("/:id", handler.releaseOrder)
			orderRoutes.POST("/:id/poll", handler.pollOrder)
		}

		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
