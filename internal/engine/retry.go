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

package engine

import (
	"context"
	"time"

	pkgerrors "apexflow/pkg/errors"
	"apexflow/pkg/log"
)

// RetryWithBackoff 对瞬时失败（超时、连接错误）做指数退避重试。
// 非瞬时错误立即向上抛，不消耗重试次数。
func RetryWithBackoff[T any](ctx context.Context, logger *log.Logger, maxAttempts int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !pkgerrors.IsTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt < maxAttempts-1 {
			delay := baseDelay * (1 << attempt)
			logger.Warn("瞬时错误，退避重试",
				"delay", delay.String(),
				"attempt", attempt+1,
				"max_attempts", maxAttempts,
				"error", err.Error())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		} else {
			logger.Error("重试次数耗尽", "max_attempts", maxAttempts, "error", err.Error())
		}
	}
	return zero, lastErr
}
