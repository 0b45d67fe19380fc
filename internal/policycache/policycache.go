// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package policycache is the read-through cache of policy bundles.
//
// Every cache interaction is best-effort: a Redis outage, a miss or a
// corrupt entry all fall through to the store. Only store errors
// surface, and only positive results are cached (no negative caching,
// so a just-created policy is visible immediately).
package policycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

// DefaultTTL bounds staleness of a cached bundle.
const DefaultTTL = 300 * time.Second

// CacheKey is the Redis key for a policy id.
func CacheKey(policyID uuid.UUID) string { return fmt.Sprintf("rk:policy:%s", policyID) }

// StringCache abstracts the minimal surface we need from a Redis
// client: GET and SET-with-expiry on string values.
type StringCache interface {
	// Get returns (value, true, nil) on a hit and (_, false, nil) on a
	// miss; transport failures come back as errors.
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// GoRedisCache adapts a go-redis client to StringCache.
type GoRedisCache struct {
	Client redis.UniversalClient
}

func (g GoRedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := g.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (g GoRedisCache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.Client.Set(ctx, key, value, ttl).Err()
}

// PolicyStore is the fallback source of truth.
type PolicyStore interface {
	PolicyByID(ctx context.Context, id uuid.UUID) (*store.Policy, error)
}

// Cache reads policies through Redis into the store.
type Cache struct {
	cache StringCache
	db    PolicyStore
	ttl   time.Duration
	log   zerolog.Logger
}

// New builds a Cache. A non-positive ttl uses DefaultTTL.
func New(cache StringCache, db PolicyStore, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{cache: cache, db: db, ttl: ttl, log: log}
}

// Load resolves a policy bundle by id. Returns (nil, nil) when the
// policy does not exist in the store.
func (c *Cache) Load(ctx context.Context, policyID uuid.UUID) (*store.Policy, error) {
	key := CacheKey(policyID)

	cached, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("policy_id", policyID.String()).
			Msg("policy cache unavailable; falling back to store")
	} else if ok {
		var p store.Policy
		if derr := json.Unmarshal([]byte(cached), &p); derr == nil {
			return &p, nil
		} else {
			c.log.Warn().Err(derr).Str("policy_id", policyID.String()).
				Msg("policy cache decode failed; falling back to store")
		}
	}

	p, err := c.db.PolicyByID(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("policycache: load from store: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	// Best-effort cache fill; losing it costs one extra store read.
	if buf, merr := json.Marshal(p); merr == nil {
		if serr := c.cache.SetEx(ctx, key, string(buf), c.ttl); serr != nil {
			c.log.Warn().Err(serr).Str("policy_id", policyID.String()).
				Msg("policy cache fill failed")
		}
	}
	return p, nil
}
