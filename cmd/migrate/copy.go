package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"smsrent/backend/internal/storage"
)

// errTargetExists 目标存储已有订单记录
var errTargetExists = errors.New("target already has an order record, use -force to overwrite")

// copyRecord 校验源记录可解析后原样写入目标，返回订单数量。源记录不存在时写入空表。
func copyRecord(ctx context.Context, src, dst storage.Backend, key string, force bool) (int, error) {
	orders, err := storage.NewOrderStore(src, key, clockwork.NewRealClock(), nil).List(ctx)
	if err != nil {
		return 0, fmt.Errorf("read source record: %w", err)
	}

	if !force {
		_, err := dst.Load(ctx, key)
		switch {
		case err == nil:
			return 0, errTargetExists
		case !errors.Is(err, storage.ErrRecordNotFound):
			return 0, fmt.Errorf("check target record: %w", err)
		}
	}

	raw, err := src.Load(ctx, key)
	if errors.Is(err, storage.ErrRecordNotFound) {
		raw = []byte("{}")
	} else if err != nil {
		return 0, fmt.Errorf("load source record: %w", err)
	}

	if err := dst.Store(ctx, key, raw); err != nil {
		return 0, fmt.Errorf("store target record: %w", err)
	}
	return len(orders), nil
}
