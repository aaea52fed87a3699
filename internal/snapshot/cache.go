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

package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"apexflow/internal/graph"
)

const cacheTTL = 30 * time.Minute

// cachedStore 在底层 Store 前加一层 Redis 热缓存；运行中的 run 读快照
// （状态查询接口）走缓存，写穿透到底层。缓存失败静默降级。
type cachedStore struct {
	inner Store
	rdb   *redis.Client
}

// NewCachedStore 包装 Redis 缓存层
func NewCachedStore(inner Store, addr string, db int) Store {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &cachedStore{inner: inner, rdb: rdb}
}

func cacheKey(sessionID string) string {
	return "apexflow:session:" + sessionID
}

func (c *cachedStore) Save(ctx context.Context, exp graph.Export) error {
	if data, err := exp.Marshal(); err == nil {
		_ = c.rdb.Set(ctx, cacheKey(exp.Meta.SessionID), data, cacheTTL).Err()
	}
	return c.inner.Save(ctx, exp)
}

func (c *cachedStore) Load(ctx context.Context, sessionID string) (*graph.Export, error) {
	if data, err := c.rdb.Get(ctx, cacheKey(sessionID)).Bytes(); err == nil {
		var exp graph.Export
		if err := json.Unmarshal(data, &exp); err == nil {
			return &exp, nil
		}
	}
	return c.inner.Load(ctx, sessionID)
}

func (c *cachedStore) Close() error {
	_ = c.rdb.Close()
	return c.inner.Close()
}
