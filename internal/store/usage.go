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

package store

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/telemetry"
)

// BlockedReason enumerates the machine-readable codes stored in the
// usage log when a request is not forwarded. HTTP status codes are a
// separate axis; these stay stable across API surface changes.
type BlockedReason string

const (
	BlockRateLimitExceeded           BlockedReason = "rate_limit_exceeded"
	BlockMonthlyQuotaExceeded        BlockedReason = "monthly_quota_exceeded"
	BlockUnknownPartner              BlockedReason = "unknown_partner"
	BlockDBError                     BlockedReason = "db_error"
	BlockSSRFBlocked                 BlockedReason = "ssrf_blocked"
	BlockInvalidUpstreamResponse     BlockedReason = "invalid_upstream_response"
	BlockMissingUpstreamCredential   BlockedReason = "missing_upstream_credential"
	BlockInvalidPartnerBaseURL       BlockedReason = "invalid_partner_base_url"
	BlockInvalidUpstreamPath         BlockedReason = "invalid_upstream_path"
	BlockInvalidCredentialHeaderName BlockedReason = "invalid_credential_header_name"
	BlockInvalidCredentialHeaderVal  BlockedReason = "invalid_credential_header_value"
	BlockUpstreamRequestFailed       BlockedReason = "upstream_request_failed"
	BlockEndpointNotAllowed          BlockedReason = "endpoint_not_allowed"
)

// UsageEvent is one append-only row in the usage log. Exactly one is
// recorded per authenticated inbound request.
//
// Forwarded events carry StatusCode and no BlockedReason; blocked
// events carry BlockedReason and no StatusCode. StatusCode 0 and
// BlockedReason "" persist as NULL.
type UsageEvent struct {
	VirtualKeyID  uuid.UUID
	PartnerName   string
	Path          string
	Forwarded     bool
	BlockedReason BlockedReason
	StatusCode    int
	LatencyMS     int64
}

// InsertUsageEvent appends one row to usage_events.
func (s *Store) InsertUsageEvent(ctx context.Context, ev UsageEvent) error {
	var reason *string
	if ev.BlockedReason != "" {
		r := string(ev.BlockedReason)
		reason = &r
	}
	var status *int32
	if ev.StatusCode != 0 {
		sc := int32(ev.StatusCode)
		status = &sc
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_events (virtual_key_id, partner_name, path, forwarded, blocked_reason, status_code, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.VirtualKeyID, ev.PartnerName, ev.Path, ev.Forwarded, reason, status, clampLatency(ev.LatencyMS),
	)
	if err != nil {
		return fmt.Errorf("store: insert usage event: %w", err)
	}
	return nil
}

func clampLatency(ms int64) int32 {
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	if ms < 0 {
		return 0
	}
	return int32(ms)
}

// UsageWriter is the minimal surface Recorder needs; *Store satisfies
// it, tests use a fake.
type UsageWriter interface {
	InsertUsageEvent(ctx context.Context, ev UsageEvent) error
}

// Recorder persists usage events without ever failing the request: by
// the time an event exists, the caller has already decided the outcome,
// so insert errors are logged and dropped.
type Recorder struct {
	db  UsageWriter
	log zerolog.Logger
}

// NewRecorder builds a Recorder over the given writer.
func NewRecorder(db UsageWriter, log zerolog.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Record appends the event and feeds the outcome metrics.
func (r *Recorder) Record(ctx context.Context, ev UsageEvent) {
	outcome := "forwarded"
	if !ev.Forwarded {
		outcome = string(ev.BlockedReason)
	}
	telemetry.ObserveRequest(outcome, float64(ev.LatencyMS)/1000.0)

	if err := r.db.InsertUsageEvent(ctx, ev); err != nil {
		telemetry.ObserveUsageInsertError()
		r.log.Error().Err(err).
			Str("virtual_key_id", ev.VirtualKeyID.String()).
			Str("partner", ev.PartnerName).
			Str("outcome", outcome).
			Msg("usage event insert failed")
	}
}
