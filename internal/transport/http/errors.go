package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smsrent/backend/internal/domain"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	domain.ErrOrderNotFound:      MsgOrderNotFound,
	domain.ErrOrderIDRequired:    "订单ID不能为空",
	domain.ErrUnknownCountry:     "不支持的国家",
	domain.ErrUnknownService:     "不支持的服务",
	domain.ErrInvalidPhoneNumber: "号码格式无效",
	domain.ErrNotFound:           "号码不存在或已被释放",
	domain.ErrTransient:          "号码供应商暂时不可用，请稍后重试",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	MsgInvalidRequest  = "请求参数格式错误"
	MsgInvalidCountry  = "国家ID格式无效"
	MsgServiceRequired = "服务ID不能为空"
	MsgOrderNotFound   = "订单不存在"
	MsgProviderAuth    = "号码供应商鉴权失败"
	MsgRegulatory      = "该地区需要登记地址，请选择其他国家"
	MsgProviderReject  = "号码供应商拒绝了请求"
	MsgInternalError   = "服务器内部错误，请稍后重试"
)

// providerDetail 供应商错误的补充信息
type providerDetail struct {
	Message      string `json:"message,omitempty"`
	ProviderCode int    `json:"providerCode,omitempty"`
	Hint         string `json:"hint,omitempty"`
}

// respondError 按错误分类写出响应
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var perr *domain.ProviderError
	errors.As(err, &perr)
	detail := func() *providerDetail {
		if perr == nil {
			return nil
		}
		return &providerDetail{Message: perr.Message, ProviderCode: perr.Code, Hint: perr.Hint}
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrOrderIDRequired),
		errors.Is(err, domain.ErrUnknownCountry),
		errors.Is(err, domain.ErrUnknownService),
		errors.Is(err, domain.ErrInvalidPhoneNumber):
		BadRequest(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrRegulatory):
		d := detail()
		if d == nil {
			d = &providerDetail{Hint: domain.RegulatoryHint}
		}
		UnprocessableEntity(c, MsgRegulatory, d)
	case errors.Is(err, domain.ErrAuth):
		log.Error("provider authentication failed", zap.Error(err))
		BadGateway(c, MsgProviderAuth, detail())
	case errors.Is(err, domain.ErrRejected):
		BadGateway(c, MsgProviderReject, detail())
	case errors.Is(err, domain.ErrTransient):
		log.Warn("provider unavailable", zap.Error(err))
		BadGateway(c, GetErrorMessage(err), nil)
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}
