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
)

// schemaDDL is the full gateway schema. Statements are idempotent so
// Migrate can run on every deploy.
const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS policies (
    id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name               TEXT NOT NULL,
    endpoint_allowlist TEXT[] NOT NULL DEFAULT '{}',
    rps_limit          INTEGER,
    rps_burst          INTEGER,
    monthly_quota      INTEGER,
    timeout_ms         INTEGER NOT NULL DEFAULT 10000,
    CHECK (timeout_ms > 0)
);

CREATE TABLE IF NOT EXISTS virtual_keys (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name        TEXT NOT NULL,
    environment TEXT NOT NULL DEFAULT 'live',
    tags        TEXT[] NOT NULL DEFAULT '{}',
    key_hash    TEXT NOT NULL UNIQUE,
    enabled     BOOLEAN NOT NULL DEFAULT true,
    policy_id   UUID NOT NULL REFERENCES policies(id),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS partners (
    id       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name     TEXT NOT NULL UNIQUE,
    base_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS upstream_credentials (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    partner_id   UUID NOT NULL REFERENCES partners(id),
    header_name  TEXT NOT NULL,
    header_value TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_upstream_credentials_partner
    ON upstream_credentials(partner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS usage_events (
    id             BIGSERIAL PRIMARY KEY,
    virtual_key_id UUID NOT NULL,
    partner_name   TEXT NOT NULL,
    path           TEXT NOT NULL,
    forwarded      BOOLEAN NOT NULL,
    blocked_reason TEXT,
    status_code    INTEGER,
    latency_ms     INTEGER NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_usage_events_vk_created
    ON usage_events(virtual_key_id, created_at);
`

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
