package domain

import (
	"errors"
	"fmt"
)

// 供应商错误分类，ProviderError.Kind 取其中之一。
var (
	ErrAuth       = errors.New("provider authentication failed")
	ErrRegulatory = errors.New("territory requires a registered address")
	ErrNotFound   = errors.New("provider resource not found")
	ErrTransient  = errors.New("provider temporarily unavailable")
	ErrRejected   = errors.New("provider rejected the request")
)

// 本地业务错误
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderIDRequired    = errors.New("order id is required")
	ErrUnknownCountry     = errors.New("unknown country")
	ErrUnknownService     = errors.New("unknown service")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
)

// RegulatoryHint 地区需要地址登记时给用户的提示。
const RegulatoryHint = "This territory requires a verified address on the provider account. Register an address with the provider or choose another country."

// ProviderError 携带供应商返回的 HTTP 状态、错误码与原始提示信息。
type ProviderError struct {
	Kind    error
	Status  int
	Code    int
	Message string
	Hint    string
}

// NewProviderError 创建供应商错误，地址登记类错误自动附带提示。
func NewProviderError(kind error, status, code int, message string) *ProviderError {
	e := &ProviderError{Kind: kind, Status: status, Code: code, Message: message}
	if errors.Is(kind, ErrRegulatory) {
		e.Hint = RegulatoryHint
	}
	return e
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s (status %d, code %d)", msg, e.Status, e.Code)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// IsProviderKind 判断错误链中是否包含指定分类。
func IsProviderKind(err, kind error) bool {
	return err != nil && errors.Is(err, kind)
}
