// Package provider 封装号码供应商：Client 描述原始 REST 能力，Gateway 在其上实现搜索、购买、释放的业务策略。
package provider

import (
	"context"
	"time"

	"smsrent/backend/internal/domain"
)

// NumberClass 供应商的号码类别
type NumberClass string

const (
	ClassMobile NumberClass = "Mobile"
	ClassLocal  NumberClass = "Local"
)

// CandidateNumber 供应商返回的可购买号码，能力标记保留原始键名
type CandidateNumber struct {
	PhoneNumber  string
	FriendlyName string
	Region       string
	ISOCountry   string
	Capabilities map[string]bool
	Beta         bool
}

// OwnedNumber 账户下已持有的号码
type OwnedNumber struct {
	SID          string
	PhoneNumber  string
	FriendlyName string
	DateCreated  time.Time
}

// Client 供应商原始接口。错误应为 *domain.ProviderError，并按 domain.ErrAuth 等分类。
type Client interface {
	AvailableNumbers(ctx context.Context, iso string, class NumberClass) ([]CandidateNumber, error)
	PurchaseNumber(ctx context.Context, phoneNumber string) (*OwnedNumber, error)
	ReleaseNumber(ctx context.Context, sid string) error
	OwnedNumbers(ctx context.Context) ([]OwnedNumber, error)
	// Messages 返回发往号码的短信，since 非零时供应商可按日期粗筛。
	Messages(ctx context.Context, to string, since time.Time) ([]domain.Message, error)
}
