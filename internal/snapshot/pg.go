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
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"apexflow/internal/graph"
)

// pgStore PostgreSQL 实现，使用 sessions 表
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的快照存储
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// EnsureSchema 建表（幂等）；部署脚本或测试前置调用
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
  session_id TEXT PRIMARY KEY,
  status     TEXT NOT NULL,
  graph_data JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func (s *pgStore) Save(ctx context.Context, exp graph.Export) error {
	data, err := exp.Marshal()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO sessions (session_id, status, graph_data, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (session_id)
DO UPDATE SET status = EXCLUDED.status, graph_data = EXCLUDED.graph_data, updated_at = now()`,
		exp.Meta.SessionID, string(exp.Meta.Status), data,
	)
	return err
}

func (s *pgStore) Load(ctx context.Context, sessionID string) (*graph.Export, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT graph_data FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var exp graph.Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
