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

package retrypolicy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/limiter"
)

// Budgets caps retries per minute, separately per partner and per
// virtual key. Two independent counters bound both blast radii: a
// single conjoined counter would let one bad key drain the whole
// partner budget.
type Budgets struct {
	PartnerRetriesPerMin int64
	VKRetriesPerMin      int64
}

// DefaultBudgets matches the shipped defaults.
func DefaultBudgets() Budgets {
	return Budgets{PartnerRetriesPerMin: 300, VKRetriesPerMin: 60}
}

// PartnerBudgetKey is the minute bucket for a partner.
func PartnerBudgetKey(partnerName string) string {
	return fmt.Sprintf("rk:retry_budget:partner:%s:m", partnerName)
}

// VKBudgetKey is the minute bucket for a virtual key.
func VKBudgetKey(vkID uuid.UUID) string {
	return fmt.Sprintf("rk:retry_budget:vk:%s:m", vkID)
}

// dualBudgetLua takes one unit from both counters in a single
// invocation, arming a 60 s TTL on first use of each. Both INCRs always
// happen — the counters are best-effort and may overshoot by one per
// attempt — and the attempt is allowed only when neither went over.
// Returns {allowed(0/1), partner_remaining, vk_remaining}.
const dualBudgetLua = `
local plimit = tonumber(ARGV[1])
local vlimit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local pused = redis.call("INCR", KEYS[1])
if pused == 1 then redis.call("EXPIRE", KEYS[1], ttl) end
local vused = redis.call("INCR", KEYS[2])
if vused == 1 then redis.call("EXPIRE", KEYS[2], ttl) end

local allowed = 0
if (plimit - pused) >= 0 and (vlimit - vused) >= 0 then
  allowed = 1
end
return {allowed, plimit - pused, vlimit - vused}
`

const budgetWindowSeconds = 60

// Decision is the outcome of one budget check. Remaining counts are
// absent on the fail-open path.
type Decision struct {
	Allowed          bool
	Reason           string
	PartnerRemaining *int64
	VKRemaining      *int64
}

// Budget consumes retry allowance from Redis.
type Budget struct {
	client  limiter.Evaler
	budgets Budgets
	log     zerolog.Logger
}

// NewBudget builds a Budget; zero limits take the defaults.
func NewBudget(client limiter.Evaler, budgets Budgets, log zerolog.Logger) *Budget {
	def := DefaultBudgets()
	if budgets.PartnerRetriesPerMin <= 0 {
		budgets.PartnerRetriesPerMin = def.PartnerRetriesPerMin
	}
	if budgets.VKRetriesPerMin <= 0 {
		budgets.VKRetriesPerMin = def.VKRetriesPerMin
	}
	return &Budget{client: client, budgets: budgets, log: log}
}

// AllowRetryDual takes one unit from both the partner and virtual-key
// buckets and allows the retry only when both budgets hold. Redis
// outages fail open: a lost retry budget must not take requests down
// with it.
func (b *Budget) AllowRetryDual(ctx context.Context, partnerName string, vkID uuid.UUID) Decision {
	reply, err := b.client.Eval(ctx, dualBudgetLua,
		[]string{PartnerBudgetKey(partnerName), VKBudgetKey(vkID)},
		b.budgets.PartnerRetriesPerMin, b.budgets.VKRetriesPerMin, budgetWindowSeconds,
	)
	if err != nil {
		b.log.Warn().Err(err).Str("partner", partnerName).
			Msg("retry budget unavailable (fail-open)")
		return Decision{Allowed: true, Reason: "redis_unavailable_fail_open"}
	}

	arr, ok := reply.([]interface{})
	if !ok || len(arr) != 3 {
		b.log.Warn().Str("partner", partnerName).
			Msgf("retry budget malformed reply %T (fail-open)", reply)
		return Decision{Allowed: true, Reason: "redis_reply_malformed_fail_open"}
	}
	allowed, _ := arr[0].(int64)
	pRem, _ := arr[1].(int64)
	vRem, _ := arr[2].(int64)

	d := Decision{Allowed: allowed == 1, PartnerRemaining: &pRem, VKRemaining: &vRem}
	if !d.Allowed {
		d.Reason = "retry_budget_exhausted"
	}
	return d
}
