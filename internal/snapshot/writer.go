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
	"sync"
	"time"

	"apexflow/internal/graph"
	"apexflow/pkg/log"
)

// Writer 有界后台写入器：单队列单消费者，图的高频变更不会放大为
// 无界并发 I/O；队列满时丢弃本次快照（后续变更会再触发）。
type Writer struct {
	store  Store
	queue  chan graph.Export
	closed chan struct{}
	wg     sync.WaitGroup
	logger *log.Logger
}

// NewWriter 创建后台写入器；queueSize<=0 时默认 64
func NewWriter(store Store, queueSize int, logger *log.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 64
	}
	w := &Writer{
		store:  store,
		queue:  make(chan graph.Export, queueSize),
		closed: make(chan struct{}),
		logger: logger,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue 异步提交一次快照保存；即发即忘
func (w *Writer) Enqueue(exp graph.Export) {
	select {
	case w.queue <- exp:
	case <-w.closed:
	default:
		if w.logger != nil {
			w.logger.Debug("快照写队列已满，跳过本次保存", "session_id", exp.Meta.SessionID)
		}
	}
}

// Close 停止消费者；清空队列后返回
func (w *Writer) Close() {
	close(w.closed)
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case exp := <-w.queue:
			w.save(exp)
		case <-w.closed:
			for {
				select {
				case exp := <-w.queue:
					w.save(exp)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) save(exp graph.Export) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.Save(ctx, exp); err != nil && w.logger != nil {
		// 持久化失败不影响执行，只进观测面
		w.logger.Warn("保存图快照失败", "session_id", exp.Meta.SessionID, "error", err)
	}
}
