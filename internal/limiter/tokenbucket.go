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

package limiter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// tokenBucketLua refills and consumes in one invocation. State lives in
// a hash {tokens, ts_ms}; a fresh key starts at full capacity. The key
// expires after a week of idleness so abandoned buckets are reclaimed.
// Returns {allowed(0/1), tokens_after}.
const tokenBucketLua = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "ts_ms")
local tokens = tonumber(data[1])
local last_ms = tonumber(data[2])

if tokens == nil then tokens = cap end
if last_ms == nil then last_ms = now_ms end

local delta = math.max(0, now_ms - last_ms) / 1000.0
tokens = math.min(cap, tokens + (delta * rate))

local allowed = 0
if tokens >= 1.0 then
  allowed = 1
  tokens = tokens - 1.0
end

redis.call("HMSET", key, "tokens", tokens, "ts_ms", now_ms)
redis.call("EXPIRE", key, 60 * 60 * 24 * 7)

return {allowed, tostring(tokens)}
`

// TokenBucket admits at most rate requests per second with a burst of
// capacity, per virtual key.
type TokenBucket struct {
	client Evaler
	clock  clockwork.Clock
}

// NewTokenBucket returns a bucket over the given client. A nil clock
// uses real time.
func NewTokenBucket(client Evaler, clock clockwork.Clock) *TokenBucket {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenBucket{client: client, clock: clock}
}

// Allow consumes one token for vkID if available. A transport error is
// returned as-is; the caller chooses whether to fail open.
func (tb *TokenBucket) Allow(ctx context.Context, vkID uuid.UUID, rate, capacity int32) (bool, error) {
	nowMS := tb.clock.Now().UnixMilli()
	reply, err := tb.client.Eval(ctx, tokenBucketLua,
		[]string{RateLimitKey(vkID)},
		nowMS, rate, capacity,
	)
	if err != nil {
		return false, fmt.Errorf("limiter: token bucket eval: %w", err)
	}
	return replyAllowed(reply)
}
