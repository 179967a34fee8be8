// Package twilio 基于 twilio-go SDK 实现号码供应商（REST API 2010-04-01）。
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	twiliogo "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/provider"
)

const defaultBaseURL = "https://api.twilio.com"

// maxPages 单次列表请求最多跟随的分页数
const maxPages = 20

// Config 客户端配置
type Config struct {
	AccountSID string
	AuthToken  string
	BaseURL    string // 非默认地址时请求被改写到该主机，例如本地模拟服务
	Timeout    time.Duration
	RateLimit  float64 // 每秒请求数，<=0 表示不限速
	Burst      int
	PageSize   int
}

// Client Twilio 客户端。SDK 调用不接收 context，取消只在请求前后生效，超时由 HTTP 客户端保证。
type Client struct {
	cfg     Config
	api     *openapi.ApiService
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

var _ provider.Client = (*Client)(nil)

// New 创建客户端
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio: account sid and auth token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.BaseURL != defaultBaseURL {
		target, err := url.Parse(cfg.BaseURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("twilio: invalid base url %q", cfg.BaseURL)
		}
		httpClient.Transport = &rewriteTransport{target: target, next: http.DefaultTransport}
	}

	base := &twclient.Client{
		Credentials: twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(cfg.AccountSID)
	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username:   cfg.AccountSID,
		Password:   cfg.AuthToken,
		AccountSid: cfg.AccountSID,
		Client:     base,
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		cfg:     cfg,
		api:     rest.Api,
		limiter: limiter,
		logger:  logger.Named("twilio"),
		metrics: metrics,
	}, nil
}

// rewriteTransport 把 SDK 固定的 api.twilio.com 请求转发到配置的主机
type rewriteTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return t.next.RoundTrip(out)
}

// ========== 号码 ==========

// AvailableNumbers 查询某地区某类别中支持短信的可购号码
func (c *Client) AvailableNumbers(ctx context.Context, iso string, class provider.NumberClass) ([]provider.CandidateNumber, error) {
	iso = strings.ToUpper(iso)
	var out []provider.CandidateNumber

	err := c.call(ctx, "available_numbers", func() error {
		switch class {
		case provider.ClassMobile:
			params := &openapi.ListAvailablePhoneNumberMobileParams{}
			params.SetSmsEnabled(true).SetPageSize(c.cfg.PageSize).SetLimit(c.cfg.PageSize)
			numbers, err := c.api.ListAvailablePhoneNumberMobile(iso, params)
			if err != nil {
				return err
			}
			for _, n := range numbers {
				out = append(out, candidate(n.PhoneNumber, n.FriendlyName, n.Region, n.Locality, n.IsoCountry, n.Beta, n.Capabilities))
			}
		case provider.ClassLocal:
			params := &openapi.ListAvailablePhoneNumberLocalParams{}
			params.SetSmsEnabled(true).SetPageSize(c.cfg.PageSize).SetLimit(c.cfg.PageSize)
			numbers, err := c.api.ListAvailablePhoneNumberLocal(iso, params)
			if err != nil {
				return err
			}
			for _, n := range numbers {
				out = append(out, candidate(n.PhoneNumber, n.FriendlyName, n.Region, n.Locality, n.IsoCountry, n.Beta, n.Capabilities))
			}
		default:
			return domain.NewProviderError(domain.ErrRejected, http.StatusBadRequest, 0, "unsupported number class "+string(class))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PurchaseNumber 购买号码
func (c *Client) PurchaseNumber(ctx context.Context, phoneNumber string) (*provider.OwnedNumber, error) {
	params := &openapi.CreateIncomingPhoneNumberParams{}
	params.SetPhoneNumber(phoneNumber)

	var created *openapi.ApiV2010IncomingPhoneNumber
	err := c.call(ctx, "purchase", func() (err error) {
		created, err = c.api.CreateIncomingPhoneNumber(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil || str(created.Sid) == "" {
		return nil, domain.NewProviderError(domain.ErrTransient, http.StatusOK, 0, "purchase response has no sid")
	}
	owned := toOwned(*created)
	return &owned, nil
}

// ReleaseNumber 释放号码，号码不存在时返回 domain.ErrNotFound 分类的错误
func (c *Client) ReleaseNumber(ctx context.Context, sid string) error {
	return c.call(ctx, "release", func() error {
		return c.api.DeleteIncomingPhoneNumber(sid, &openapi.DeleteIncomingPhoneNumberParams{})
	})
}

// OwnedNumbers 列出账户下全部号码，SDK 自动跟随分页
func (c *Client) OwnedNumbers(ctx context.Context) ([]provider.OwnedNumber, error) {
	params := &openapi.ListIncomingPhoneNumberParams{}
	params.SetPageSize(c.cfg.PageSize).SetLimit(c.cfg.PageSize * maxPages)

	var numbers []openapi.ApiV2010IncomingPhoneNumber
	err := c.call(ctx, "owned_numbers", func() (err error) {
		numbers, err = c.api.ListIncomingPhoneNumber(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]provider.OwnedNumber, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, toOwned(n))
	}
	return out, nil
}

// ========== 短信 ==========

// Messages 列出发往号码的短信（最新在前）。since 按天传给供应商粗筛，精确过滤由调用方完成。
func (c *Client) Messages(ctx context.Context, to string, since time.Time) ([]domain.Message, error) {
	params := &openapi.ListMessageParams{}
	params.SetTo(to).SetPageSize(c.cfg.PageSize).SetLimit(c.cfg.PageSize * maxPages)
	if !since.IsZero() {
		params.SetDateSentAfter(since.UTC().Truncate(24 * time.Hour))
	}

	var messages []openapi.ApiV2010Message
	err := c.call(ctx, "messages", func() (err error) {
		messages, err = c.api.ListMessage(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if strings.HasPrefix(str(m.Direction), "outbound") {
			continue
		}
		out = append(out, toMessage(m))
	}
	return out, nil
}

// ========== 请求 ==========

// call 限流后执行一次 SDK 调用，记录指标并把错误归类为 *domain.ProviderError
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := fn()
	if ctx.Err() != nil {
		c.metrics.RecordProviderRequest(op, "canceled", time.Since(start))
		return ctx.Err()
	}
	if err == nil {
		c.metrics.RecordProviderRequest(op, "ok", time.Since(start))
		return nil
	}

	perr := translate(err)
	c.metrics.RecordProviderRequest(op, outcome(perr), time.Since(start))
	c.logger.Debug("provider returned error",
		zap.String("op", op),
		zap.Int("status", perr.Status),
		zap.Int("code", perr.Code),
		zap.String("message", perr.Message))
	return perr
}

// translate 把 SDK 错误转换为领域错误。非 REST 错误（网络故障、无法解码的错误响应）视为临时错误。
func translate(err error) *domain.ProviderError {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return classify(restErr.Status, restErr.Code, restErr.Message)
	}
	return &domain.ProviderError{Kind: domain.ErrTransient, Message: err.Error()}
}

// classify 按状态码与错误信息归类。400 且提示包含 "Address" 表示该地区需要登记地址。
func classify(status, code int, msg string) *domain.ProviderError {
	if msg == "" {
		msg = http.StatusText(status)
	}

	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrAuth
	case status == http.StatusBadRequest && strings.Contains(msg, "Address"):
		kind = domain.ErrRegulatory
	case status == http.StatusNotFound:
		kind = domain.ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		kind = domain.ErrTransient
	default:
		kind = domain.ErrRejected
	}
	return domain.NewProviderError(kind, status, code, msg)
}

func outcome(err *domain.ProviderError) string {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return "auth_error"
	case errors.Is(err, domain.ErrRegulatory):
		return "regulatory_error"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTransient):
		return "transient_error"
	default:
		return "rejected"
	}
}

// candidate 组装候选号码。Mobile 与 Local 的 SDK 类型字段相同，能力标记统一转为原始键名的 map。
func candidate(phone, friendly, region, locality, iso *string, beta *bool, capabilities interface{}) provider.CandidateNumber {
	r := str(region)
	if r == "" {
		r = str(locality)
	}
	return provider.CandidateNumber{
		PhoneNumber:  str(phone),
		FriendlyName: str(friendly),
		Region:       r,
		ISOCountry:   str(iso),
		Capabilities: capabilityFlags(capabilities),
		Beta:         beta != nil && *beta,
	}
}

func capabilityFlags(v interface{}) map[string]bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var flags map[string]bool
	if err := json.Unmarshal(raw, &flags); err != nil {
		return nil
	}
	return flags
}

func toOwned(n openapi.ApiV2010IncomingPhoneNumber) provider.OwnedNumber {
	return provider.OwnedNumber{
		SID:          str(n.Sid),
		PhoneNumber:  str(n.PhoneNumber),
		FriendlyName: str(n.FriendlyName),
		DateCreated:  parseDate(str(n.DateCreated)),
	}
}

func toMessage(m openapi.ApiV2010Message) domain.Message {
	date := parseDate(str(m.DateSent))
	if date.IsZero() {
		date = parseDate(str(m.DateCreated))
	}
	return domain.Message{
		ID:           str(m.Sid),
		Body:         str(m.Body),
		Date:         date,
		Sender:       str(m.From),
		Status:       str(m.Status),
		ErrorCode:    m.ErrorCode,
		ErrorMessage: str(m.ErrorMessage),
	}
}

func str[T ~string](p *T) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

// parseDate 解析 Twilio 的 RFC 1123 时间，失败返回零值
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
