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

// Package ratelimit throttles sensitive endpoints per client key.
// Single-node deployments use the in-process limiter; clustered ones
// share counters through Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter answers whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key. Buckets idle past
// evictAfter are swept on the next Allow so the map doesn't grow with
// every address that ever called.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int

	evictAfter time.Duration
	lastSweep  time.Time
}

// NewKeyedLimiter allows perMinute sustained requests per key with
// bursts up to burst.
func NewKeyedLimiter(perMinute int, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		buckets:    make(map[string]*bucket),
		limit:      rate.Limit(float64(perMinute) / 60.0),
		burst:      burst,
		evictAfter: 15 * time.Minute,
		lastSweep:  time.Now(),
	}
}

func (k *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	if now.Sub(k.lastSweep) > k.evictAfter {
		for key, b := range k.buckets {
			if now.Sub(b.lastSeen) > k.evictAfter {
				delete(k.buckets, key)
			}
		}
		k.lastSweep = now
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.Allow(), nil
}
