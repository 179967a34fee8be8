package domain

import (
	"fmt"
	"sort"
	"time"
)

// OrderTTL 号码租用时长，购买或导入时从当前时间起算。
const OrderTTL = 30 * 24 * time.Hour

// UnknownServiceID 从供应商同步导入、无法得知用途的订单使用的服务标识。
const UnknownServiceID = "unknown"

// OrderStatus 订单生命周期状态。
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // 已购买，尚未收到验证码
	OrderStatusReady     OrderStatus = "READY"     // 从供应商账户同步导入
	OrderStatusCompleted OrderStatus = "COMPLETED" // 已提取到验证码
	OrderStatusExpired   OrderStatus = "EXPIRED"   // 已超过到期时间
	OrderStatusCancelled OrderStatus = "CANCELLED" // 用户主动释放
)

// Valid 判断状态取值是否合法。
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusReady, OrderStatusCompleted, OrderStatusExpired, OrderStatusCancelled:
		return true
	}
	return false
}

// Message 表示号码收到的一条短信，包含供应商返回的投递元数据。
type Message struct {
	ID           string    `json:"id"`
	Body         string    `json:"body"`
	Date         time.Time `json:"date"`
	Sender       string    `json:"sender"`
	Status       string    `json:"status,omitempty"`
	ErrorCode    *int      `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Order 表示一次号码租用。ID 为供应商返回的号码 SID。
type Order struct {
	ID          string      `json:"id"`
	PhoneNumber string      `json:"phoneNumber"`
	ServiceID   string      `json:"serviceId"`
	CountryID   int         `json:"countryId"`
	Status      OrderStatus `json:"status"`
	Code        string      `json:"code,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	Messages    []Message   `json:"messages,omitempty"` // 最新的在前
}

// NewOrder 构造一个新订单，创建与到期时间统一为 UTC。
func NewOrder(id, phone, serviceID string, countryID int, status OrderStatus, now time.Time) *Order {
	created := now.UTC()
	return &Order{
		ID:          id,
		PhoneNumber: phone,
		ServiceID:   serviceID,
		CountryID:   countryID,
		Status:      status,
		CreatedAt:   created,
		ExpiresAt:   created.Add(OrderTTL),
	}
}

// IsExpired 到期时间不晚于 now 即视为过期。
func (o *Order) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// HasMessage 判断是否已保存指定 ID 的短信。
func (o *Order) HasMessage(id string) bool {
	for i := range o.Messages {
		if o.Messages[i].ID == id {
			return true
		}
	}
	return false
}

// CodeExtractor 从短信正文中提取验证码。
type CodeExtractor func(body string) (string, bool)

// Ingest 合并新拉取到的短信。已存在的 ID 会被跳过，新短信按日期并入列表，列表保持最新在前；
// 供应商迟到的旧短信会落在更新的短信之后。新短信按时间从旧到新依次提取验证码，
// 匹配时 Code 被覆盖、状态置为 COMPLETED。返回新增短信数量。
func (o *Order) Ingest(batch []Message, extract CodeExtractor) int {
	fresh := make([]Message, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, m := range batch {
		if m.ID == "" || o.HasMessage(m.ID) {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}

	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Date.Before(fresh[j].Date) })
	merged := make([]Message, 0, len(fresh)+len(o.Messages))
	for i := len(fresh) - 1; i >= 0; i-- {
		merged = append(merged, fresh[i])
	}
	merged = append(merged, o.Messages...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Date.After(merged[j].Date) })
	o.Messages = merged

	if extract == nil {
		return len(fresh)
	}
	for _, m := range fresh {
		if code, ok := extract(m.Body); ok {
			o.Code = code
			o.Status = OrderStatusCompleted
		}
	}
	return len(fresh)
}

// Normalize 把时间统一为 UTC，空短信列表置为 nil，使订单与持久化后读回的结果一致。
func (o *Order) Normalize() {
	o.CreatedAt = o.CreatedAt.UTC()
	o.ExpiresAt = o.ExpiresAt.UTC()
	if len(o.Messages) == 0 {
		o.Messages = nil
		return
	}
	for i := range o.Messages {
		o.Messages[i].Date = o.Messages[i].Date.UTC()
	}
}

// TimeLeft 返回剩余时间的展示文本，例如 "29d 23h 59m"，过期后返回 "Expired"。
func (o *Order) TimeLeft(now time.Time) string {
	left := o.ExpiresAt.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	days := int(left / (24 * time.Hour))
	left -= time.Duration(days) * 24 * time.Hour
	hours := int(left / time.Hour)
	left -= time.Duration(hours) * time.Hour
	minutes := int(left / time.Minute)
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

// OrderView 对外展示的订单，附带剩余时间文本。
type OrderView struct {
	Order
	TimeLeft string `json:"timeLeft"`
}

// View 生成 now 时刻的展示数据
func (o Order) View(now time.Time) OrderView {
	return OrderView{Order: o, TimeLeft: o.TimeLeft(now)}
}

// Views 批量生成展示数据
func Views(orders []Order, now time.Time) []OrderView {
	out := make([]OrderView, len(orders))
	for i := range orders {
		out[i] = orders[i].View(now)
	}
	return out
}

// SortOrders 按创建时间倒序排列，创建时间相同则按 ID 排序。
func SortOrders(orders []Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
