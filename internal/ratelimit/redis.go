// Copyright 2025 Acnodal Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared across hub replicas:
// INCR per key, EXPIRE on the first hit of the window.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, perWindow int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: perWindow, window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rkey := "ratelimit:" + key
	n, err := r.client.Incr(ctx, rkey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing %s: %w", rkey, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, rkey, r.window).Err(); err != nil {
			return false, fmt.Errorf("expiring %s: %w", rkey, err)
		}
	}
	return n <= r.max, nil
}
