// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package snapshot 执行图快照持久化：每次图变更后 best-effort 保存，
// 失败只记日志不向引擎传播。
package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"apexflow/internal/graph"
	"apexflow/pkg/config"
)

// Store 图快照存储接口
type Store interface {
	// Save 保存（覆盖）会话快照
	Save(ctx context.Context, exp graph.Export) error
	// Load 按 session id 读取快照；不存在时返回 (nil, nil)
	Load(ctx context.Context, sessionID string) (*graph.Export, error)
	// Close 释放底层连接
	Close() error
}

// NewStore 根据配置创建快照存储；可选 Redis 热缓存包装
func NewStore(ctx context.Context, cfg config.SnapshotConfig) (Store, error) {
	var base Store
	switch cfg.Type {
	case "", "memory":
		base = NewMemoryStore()
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("snapshot type=postgres 需要 dsn")
		}
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("连接 Postgres 失败: %w", err)
		}
		base = NewPgStore(pool)
	default:
		return nil, fmt.Errorf("不支持的快照存储类型: %s", cfg.Type)
	}
	if cfg.CacheAddr != "" {
		return NewCachedStore(base, cfg.CacheAddr, cfg.CacheDB), nil
	}
	return base, nil
}
