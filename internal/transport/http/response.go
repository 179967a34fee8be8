package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构，code 与 HTTP 状态码一致
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// 各状态码的默认提示
var defaultMessages = map[int]string{
	http.StatusOK:                  "成功",
	http.StatusCreated:             "创建成功",
	http.StatusBadRequest:          MsgInvalidRequest,
	http.StatusNotFound:            "资源不存在",
	http.StatusUnprocessableEntity: "请求无法处理",
	http.StatusInternalServerError: MsgInternalError,
	http.StatusBadGateway:          "号码供应商请求失败",
}

// respond 写出统一结构，msg 为空时使用默认提示
func respond(c *gin.Context, status int, msg string, data interface{}) {
	if msg == "" {
		msg = defaultMessages[status]
	}
	c.JSON(status, Response{Code: status, Msg: msg, Data: data})
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "", data)
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusOK, msg, data)
}

// Created 创建成功（201）
func Created(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, "", data)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	respond(c, http.StatusBadRequest, msg, nil)
}

// NotFound 订单或号码不存在（404）
func NotFound(c *gin.Context, msg string) {
	respond(c, http.StatusNotFound, msg, nil)
}

// UnprocessableEntity 地区需要登记地址等无法处理的请求（422），data 携带提示
func UnprocessableEntity(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusUnprocessableEntity, msg, data)
}

// BadGateway 供应商鉴权失败、拒绝或不可用（502）
func BadGateway(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusBadGateway, msg, data)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	respond(c, http.StatusInternalServerError, msg, nil)
}
