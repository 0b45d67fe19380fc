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
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PolicyByID fetches a policy bundle. Absent ids return (nil, nil).
func (s *Store) PolicyByID(ctx context.Context, id uuid.UUID) (*Policy, error) {
	var p Policy
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, endpoint_allowlist, rps_limit, rps_burst, monthly_quota, timeout_ms
		FROM policies
		WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.EndpointAllowlist, &p.RPSLimit, &p.RPSBurst, &p.MonthlyQuota, &p.TimeoutMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: policy by id: %w", err)
	}
	return &p, nil
}

// InsertPolicy stores a policy and returns its id. Used by the seed
// helper and by operators; the gateway itself only reads policies.
func (s *Store) InsertPolicy(ctx context.Context, p Policy) (uuid.UUID, error) {
	if p.EndpointAllowlist == nil {
		p.EndpointAllowlist = []string{}
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO policies (name, endpoint_allowlist, rps_limit, rps_burst, monthly_quota, timeout_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.Name, p.EndpointAllowlist, p.RPSLimit, p.RPSBurst, p.MonthlyQuota, p.TimeoutMS,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert policy: %w", err)
	}
	return id, nil
}
