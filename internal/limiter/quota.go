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
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// monthlyQuotaLua checks and increments in one invocation. A denied
// request never bumps the counter. The first increment of a month sets
// the key to expire at the next UTC month boundary.
// Returns {allowed(0/1), count_after}.
const monthlyQuotaLua = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key))
if current == nil then current = 0 end

if current >= limit then
  return {0, current}
end

local nextv = redis.call("INCR", key)
if nextv == 1 then
  redis.call("EXPIRE", key, ttl)
end

return {1, nextv}
`

// MonthlyQuota caps total admitted requests per virtual key per UTC
// calendar month.
type MonthlyQuota struct {
	client Evaler
	clock  clockwork.Clock
}

// NewMonthlyQuota returns a quota over the given client. A nil clock
// uses real time.
func NewMonthlyQuota(client Evaler, clock clockwork.Clock) *MonthlyQuota {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MonthlyQuota{client: client, clock: clock}
}

// AllowAndIncr admits and counts one request for vkID under limit.
// Denials do not increment. Transport errors are returned as-is.
func (q *MonthlyQuota) AllowAndIncr(ctx context.Context, vkID uuid.UUID, limit int32) (bool, error) {
	now := q.clock.Now().UTC()
	reply, err := q.client.Eval(ctx, monthlyQuotaLua,
		[]string{QuotaKey(vkID, yyyymmUTC(now))},
		limit, secondsUntilNextMonthUTC(now),
	)
	if err != nil {
		return false, fmt.Errorf("limiter: monthly quota eval: %w", err)
	}
	return replyAllowed(reply)
}

// yyyymmUTC renders the month bucket, e.g. "202608".
func yyyymmUTC(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%04d%02d", now.Year(), int(now.Month()))
}

// secondsUntilNextMonthUTC is the TTL for a fresh quota key: the gap to
// the first instant of the next UTC month, floored at 60 s so a key
// created right before the boundary does not expire mid-request.
func secondsUntilNextMonthUTC(now time.Time) int64 {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	secs := int64(next.Sub(now).Seconds())
	if secs < 60 {
		secs = 60
	}
	return secs
}
