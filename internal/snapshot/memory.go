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
	"sync"

	"apexflow/internal/graph"
)

type memoryStore struct {
	mu   sync.RWMutex
	byID map[string][]byte
}

// NewMemoryStore 创建内存版快照存储；单进程或测试用
func NewMemoryStore() Store {
	return &memoryStore{byID: make(map[string][]byte)}
}

func (m *memoryStore) Save(ctx context.Context, exp graph.Export) error {
	data, err := exp.Marshal()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.byID[exp.Meta.SessionID] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Load(ctx context.Context, sessionID string) (*graph.Export, error) {
	m.mu.RLock()
	data, ok := m.byID[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var exp graph.Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (m *memoryStore) Close() error { return nil }
