// Package providertest 提供内存版供应商，供业务层测试使用。
package providertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/provider"
)

// Call 记录一次调用
type Call struct {
	Op    string
	Arg   string
	Class provider.NumberClass
}

// Fake 内存供应商。未配置的地区返回 not found。
type Fake struct {
	mu        sync.Mutex
	available map[string][]provider.CandidateNumber // iso|class -> numbers
	searchErr map[string]error                      // iso|class -> error
	owned     map[string]provider.OwnedNumber       // sid -> number
	messages  map[string][]domain.Message           // phone -> messages（最新在前）
	calls     []Call
	nextSID   int

	PurchaseErr error
	ReleaseErr  error
	OwnedErr    error
	MessagesErr error
}

var _ provider.Client = (*Fake)(nil)

// New 创建空的内存供应商
func New() *Fake {
	return &Fake{
		available: make(map[string][]provider.CandidateNumber),
		searchErr: make(map[string]error),
		owned:     make(map[string]provider.OwnedNumber),
		messages:  make(map[string][]domain.Message),
	}
}

func key(iso string, class provider.NumberClass) string {
	return iso + "|" + string(class)
}

// SetAvailable 设置某地区某类别的可购号码
func (f *Fake) SetAvailable(iso string, class provider.NumberClass, numbers ...provider.CandidateNumber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[key(iso, class)] = numbers
}

// FailSearch 让某地区某类别的搜索返回指定错误
func (f *Fake) FailSearch(iso string, class provider.NumberClass, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchErr[key(iso, class)] = err
}

// AddOwned 直接向账户添加号码，模拟在其他客户端购买
func (f *Fake) AddOwned(sid, phone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owned[sid] = provider.OwnedNumber{SID: sid, PhoneNumber: phone, DateCreated: time.Now().UTC()}
}

// RemoveOwned 从账户移除号码，模拟在其他客户端释放
func (f *Fake) RemoveOwned(sid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.owned, sid)
}

// Deliver 向号码投递一条短信
func (f *Fake) Deliver(phone string, msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[phone] = append([]domain.Message{msg}, f.messages[phone]...)
}

// Calls 返回调用记录副本
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount 统计某操作的调用次数
func (f *Fake) CallCount(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// AvailableNumbers 实现 provider.Client
func (f *Fake) AvailableNumbers(ctx context.Context, iso string, class provider.NumberClass) ([]provider.CandidateNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "available", Arg: iso, Class: class})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.searchErr[key(iso, class)]; ok {
		return nil, err
	}
	numbers, ok := f.available[key(iso, class)]
	if !ok {
		return nil, domain.NewProviderError(domain.ErrNotFound, 404, 20404, "The requested resource was not found")
	}
	out := make([]provider.CandidateNumber, len(numbers))
	copy(out, numbers)
	return out, nil
}

// PurchaseNumber 实现 provider.Client
func (f *Fake) PurchaseNumber(ctx context.Context, phoneNumber string) (*provider.OwnedNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "purchase", Arg: phoneNumber})
	if f.PurchaseErr != nil {
		return nil, f.PurchaseErr
	}
	f.nextSID++
	owned := provider.OwnedNumber{
		SID:         fmt.Sprintf("PN%032d", f.nextSID),
		PhoneNumber: phoneNumber,
		DateCreated: time.Now().UTC(),
	}
	f.owned[owned.SID] = owned
	return &owned, nil
}

// ReleaseNumber 实现 provider.Client
func (f *Fake) ReleaseNumber(ctx context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "release", Arg: sid})
	if f.ReleaseErr != nil {
		return f.ReleaseErr
	}
	if _, ok := f.owned[sid]; !ok {
		return domain.NewProviderError(domain.ErrNotFound, 404, 20404, "The requested resource was not found")
	}
	delete(f.owned, sid)
	return nil
}

// OwnedNumbers 实现 provider.Client
func (f *Fake) OwnedNumbers(ctx context.Context) ([]provider.OwnedNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "owned"})
	if f.OwnedErr != nil {
		return nil, f.OwnedErr
	}
	out := make([]provider.OwnedNumber, 0, len(f.owned))
	for _, n := range f.owned {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out, nil
}

// Messages 实现 provider.Client，按日期粗筛 since，没有日期的短信原样返回
func (f *Fake) Messages(ctx context.Context, to string, since time.Time) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "messages", Arg: to})
	if f.MessagesErr != nil {
		return nil, f.MessagesErr
	}
	day := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]domain.Message, 0, len(f.messages[to]))
	for _, m := range f.messages[to] {
		if since.IsZero() || m.Date.IsZero() || !m.Date.Before(day) {
			out = append(out, m)
		}
	}
	return out, nil
}

// SetMessagesErr 并发安全地设置短信查询错误，nil 表示恢复
func (f *Fake) SetMessagesErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MessagesErr = err
}

// SetOwnedErr 并发安全地设置账户号码查询错误
func (f *Fake) SetOwnedErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OwnedErr = err
}
