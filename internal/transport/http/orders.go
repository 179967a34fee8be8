package httptransport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/health"
	"smsrent/backend/internal/service"
)

// OrderHandler 号码与订单相关的 HTTP 处理逻辑
type OrderHandler struct {
	orders *service.OrderService
	logger *zap.Logger
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(orders *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

type orderListResponse struct {
	Items []domain.OrderView `json:"items"`
	Count int                `json:"count"`
}

type numberListResponse struct {
	Items []domain.AvailableNumber `json:"items"`
	Count int                      `json:"count"`
}

type syncResponse struct {
	Items    []domain.OrderView `json:"items"`
	Count    int                `json:"count"`
	Imported int                `json:"imported"`
	Evicted  int                `json:"evicted"`
	Stale    bool               `json:"stale"`
}

// listCountries godoc
// @Summary 国家列表
// @Tags Catalog
// @Produce json
// @Success 200 {object} Response{data=[]domain.Country}
// @Router /v1/catalog/countries [get]
func (h *OrderHandler) listCountries(c *gin.Context) {
	Success(c, h.orders.Countries())
}

// listServices godoc
// @Summary 服务列表
// @Tags Catalog
// @Produce json
// @Success 200 {object} Response{data=[]domain.Service}
// @Router /v1/catalog/services [get]
func (h *OrderHandler) listServices(c *gin.Context) {
	Success(c, h.orders.Services())
}

// searchNumbers godoc
// @Summary 搜索可租号码
// @Description country 为 0 时在多个地区中聚合搜索
// @Tags Numbers
// @Produce json
// @Param country query int true "国家ID"
// @Param service query string true "服务ID"
// @Success 200 {object} Response{data=numberListResponse}
// @Failure 400 {object} Response
// @Failure 422 {object} Response
// @Failure 502 {object} Response
// @Router /v1/numbers [get]
func (h *OrderHandler) searchNumbers(c *gin.Context) {
	countryID, err := strconv.Atoi(strings.TrimSpace(c.Query("country")))
	if err != nil {
		BadRequest(c, MsgInvalidCountry)
		return
	}
	serviceID := strings.TrimSpace(c.Query("service"))
	if serviceID == "" {
		BadRequest(c, MsgServiceRequired)
		return
	}

	numbers, err := h.orders.Search(c.Request.Context(), countryID, serviceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, numberListResponse{Items: numbers, Count: len(numbers)})
}

// createOrder godoc
// @Summary 购买号码
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body service.BuyOrderInput true "购买参数"
// @Success 201 {object} Response{data=domain.OrderView}
// @Failure 400 {object} Response
// @Failure 502 {object} Response
// @Router /v1/orders [post]
func (h *OrderHandler) createOrder(c *gin.Context) {
	var req service.BuyOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	order, err := h.orders.Buy(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Created(c, order.View(h.orders.Now()))
}

// listOrders godoc
// @Summary 有效订单列表
// @Description 返回未过期订单（最新在前），过期订单会被清理
// @Tags Orders
// @Produce json
// @Success 200 {object} Response{data=orderListResponse}
// @Router /v1/orders [get]
func (h *OrderHandler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, orderListResponse{Items: domain.Views(orders, h.orders.Now()), Count: len(orders)})
}

// getOrder godoc
// @Summary 订单详情
// @Tags Orders
// @Produce json
// @Param id path string true "订单ID或号码"
// @Success 200 {object} Response{data=domain.OrderView}
// @Failure 404 {object} Response
// @Router /v1/orders/{id} [get]
func (h *OrderHandler) getOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, order.View(h.orders.Now()))
}

// releaseOrder godoc
// @Summary 释放号码
// @Tags Orders
// @Produce json
// @Param id path string true "订单ID或号码"
// @Success 200 {object} Response{data=domain.OrderView}
// @Failure 502 {object} Response
// @Router /v1/orders/{id} [delete]
func (h *OrderHandler) releaseOrder(c *gin.Context) {
	released, err := h.orders.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if released == nil {
		SuccessWithMsg(c, "号码已释放", nil)
		return
	}
	SuccessWithMsg(c, "号码已释放", released.View(h.orders.Now()))
}

// syncOrders godoc
// @Summary 与供应商对账
// @Tags Orders
// @Produce json
// @Success 200 {object} Response{data=syncResponse}
// @Router /v1/orders/sync [post]
func (h *OrderHandler) syncOrders(c *gin.Context) {
	result, err := h.orders.Sync(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, syncResponse{
		Items:    domain.Views(result.Orders, h.orders.Now()),
		Count:    len(result.Orders),
		Imported: result.Imported,
		Evicted:  result.Evicted,
		Stale:    result.Stale,
	})
}

// pollOrder godoc
// @Summary 立即检查新短信
// @Tags Orders
// @Produce json
// @Param id path string true "订单ID或号码"
// @Success 200 {object} Response{data=domain.OrderView}
// @Failure 404 {object} Response
// @Failure 502 {object} Response
// @Router /v1/orders/{id}/poll [post]
func (h *OrderHandler) pollOrder(c *gin.Context) {
	order, err := h.orders.PollOnce(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, order.View(h.orders.Now()))
}

// healthSummary godoc
// @Summary 健康检查
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *OrderHandler) healthSummary(checker *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		results := checker.CheckHealth(c.Request.Context())
		if !health.Healthy(results) {
			c.JSON(http.StatusServiceUnavailable, results)
			return
		}
		results["status"] = "ok"
		c.JSON(http.StatusOK, results)
	}
}
