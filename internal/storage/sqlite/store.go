// Package sqlite 使用嵌入式 SQLite 文件保存记录，适合单机部署。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动，注册为 "sqlite"

	"smsrent/backend/internal/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS kv_records (
	record_key   TEXT PRIMARY KEY,
	record_value BLOB NOT NULL,
	updated_at   TIMESTAMP NOT NULL
)`

// Store SQLite 存储实现
type Store struct {
	db   *sql.DB
	path string
}

// NewStore 打开（必要时创建）数据库文件并建表
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite 只允许单写者
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv_records: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Load 读取记录
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT record_value FROM kv_records WHERE record_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", key, err)
	}
	return value, nil
}

// Store 插入或覆盖记录
func (s *Store) Store(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (record_key, record_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE SET record_value = excluded.record_value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store record %s: %w", key, err)
	}
	return nil
}

// Health 检查数据库连接
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}
