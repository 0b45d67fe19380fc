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

package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

// partnerFromPath extracts the partner segment of /proxy/{partner}/...
// for usage attribution, or "-" when the path has another shape.
func partnerFromPath(path string) string {
	parts := strings.SplitN(path, "/", 4)
	if len(parts) < 3 || parts[1] != "proxy" || parts[2] == "" {
		return "-"
	}
	return parts[2]
}

type blockedResp struct {
	Code string `json:"code"`
}

// enforceLimits applies the token bucket and then the monthly quota.
// Denials are terminal: they record the usage event and answer 429 with
// a machine-readable code. Limiter transport errors fail open — an
// unavailable Redis must not take the proxy down.
func (s *Server) enforceLimits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		auth, ok := AuthFrom(ctx)
		if !ok {
			http.Error(w, "missing auth context", http.StatusInternalServerError)
			return
		}

		path := r.URL.Path
		partnerName := partnerFromPath(path)

		blocked := func(reason store.BlockedReason) {
			s.usage.Record(ctx, store.UsageEvent{
				VirtualKeyID:  auth.VirtualKey.ID,
				PartnerName:   partnerName,
				Path:          path,
				Forwarded:     false,
				BlockedReason: reason,
				LatencyMS:     s.clock.Since(auth.Start).Milliseconds(),
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(blockedResp{Code: string(reason)})
		}

		if auth.Policy.RPSLimit != nil {
			allowed, err := s.rateLimit.Allow(ctx, auth.VirtualKey.ID, *auth.Policy.RPSLimit, auth.Policy.Capacity())
			switch {
			case err != nil:
				zerolog.Ctx(ctx).Warn().Err(err).
					Str("vk_id", auth.VirtualKey.ID.String()).
					Str("partner", partnerName).
					Msg("rate limiter unavailable (fail-open)")
			case !allowed:
				blocked(store.BlockRateLimitExceeded)
				return
			}
		}

		// Quota increments only for admitted attempts, so it runs after
		// the rate check and never on a rate-limit denial.
		if auth.Policy.MonthlyQuota != nil {
			allowed, err := s.quota.AllowAndIncr(ctx, auth.VirtualKey.ID, *auth.Policy.MonthlyQuota)
			switch {
			case err != nil:
				zerolog.Ctx(ctx).Warn().Err(err).
					Str("vk_id", auth.VirtualKey.ID.String()).
					Str("partner", partnerName).
					Msg("monthly quota unavailable (fail-open)")
			case !allowed:
				blocked(store.BlockMonthlyQuotaExceeded)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
