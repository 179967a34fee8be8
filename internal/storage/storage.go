package storage

import (
	"context"
	"errors"

	"smsrent/backend/internal/domain"
)

var (
	// ErrRecordNotFound 后端中不存在指定键
	ErrRecordNotFound = errors.New("record not found")
	// ErrBackendClosed 后端已关闭
	ErrBackendClosed = errors.New("storage backend closed")
)

// DefaultRecordKey 订单记录在后端中的默认键名。
const DefaultRecordKey = "my_orders"

// Backend 以键值形式持久化整块记录。所有后端（内存、文件、Redis、SQL）都实现该接口。
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Health(ctx context.Context) error
	Close() error
}

// OrderRepository 定义订单数据存取操作。
type OrderRepository interface {
	Save(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, idOrPhone string) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)       // 全部订单，不做清理
	ListActive(ctx context.Context) ([]domain.Order, error) // 清理过期订单后返回剩余订单
	Remove(ctx context.Context, idOrPhone string) (int, error)
	// Update 在同一把锁内读取、修改并写回单个订单。fn 返回 false 表示无需写回。
	Update(ctx context.Context, id string, fn func(order *domain.Order) (bool, error)) (*domain.Order, error)
	// Mutate 在同一把锁内读取、修改并写回整张订单表。
	Mutate(ctx context.Context, fn func(orders map[string]*domain.Order) error) error
}
