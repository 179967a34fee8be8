package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"smsrent/backend/internal/storage"
)

// Record 记录表行结构，mysql、postgres、sqlite 三种后端共用同一张表。
type Record struct {
	RecordKey   string    `gorm:"primaryKey;type:varchar(191)"`
	RecordValue []byte    `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName 固定表名
func (Record) TableName() string {
	return "kv_records"
}

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建SQL数据库存储，并自动迁移记录表
func NewStore(driverName, dsn string, opts Options) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := newWithDialector(db, driverName, dialectorFor(driverName, db))
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func dialectorFor(driverName string, db *sql.DB) gorm.Dialector {
	if driverName == "mysql" {
		return mysql.New(mysql.Config{Conn: db})
	}
	return postgres.New(postgres.Config{Conn: db})
}

func newWithDialector(db *sql.DB, driverName string, dialector gorm.Dialector) (*Store, error) {
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	if err := gormDB.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, gormDB: gormDB, driverName: driverName}, nil
}

// Load 读取记录
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var rec Record
	err := s.gormDB.WithContext(ctx).Where("record_key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", key, err)
	}
	return rec.RecordValue, nil
}

// Store 插入或覆盖记录
func (s *Store) Store(ctx context.Context, key string, value []byte) error {
	rec := Record{RecordKey: key, RecordValue: value, UpdatedAt: time.Now().UTC()}
	err := s.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"record_value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("store record %s: %w", key, err)
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Driver 返回驱动名称
func (s *Store) Driver() string {
	return s.driverName
}
