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

// PartnerByName resolves a partner. Unknown names return (nil, nil).
func (s *Store) PartnerByName(ctx context.Context, name string) (*Partner, error) {
	var p Partner
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, base_url
		FROM partners
		WHERE name = $1`,
		name,
	).Scan(&p.ID, &p.Name, &p.BaseURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: partner by name: %w", err)
	}
	return &p, nil
}

// CredentialForPartner returns the most recently created credential for
// a partner, or (nil, nil) when none exists yet.
func (s *Store) CredentialForPartner(ctx context.Context, partnerID uuid.UUID) (*Credential, error) {
	var c Credential
	err := s.pool.QueryRow(ctx, `
		SELECT header_name, header_value
		FROM upstream_credentials
		WHERE partner_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		partnerID,
	).Scan(&c.HeaderName, &c.HeaderValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: credential for partner: %w", err)
	}
	return &c, nil
}

// UpsertPartner creates or updates a partner by name and returns its id.
func (s *Store) UpsertPartner(ctx context.Context, name, baseURL string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO partners (name, base_url)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET base_url = EXCLUDED.base_url
		RETURNING id`,
		name, baseURL,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: upsert partner: %w", err)
	}
	return id, nil
}

// InsertCredential appends a credential for a partner. The gateway
// always reads the latest, so rotation is insert-only.
func (s *Store) InsertCredential(ctx context.Context, partnerID uuid.UUID, headerName, headerValue string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upstream_credentials (partner_id, header_name, header_value)
		VALUES ($1, $2, $3)`,
		partnerID, headerName, headerValue,
	)
	if err != nil {
		return fmt.Errorf("store: insert credential: %w", err)
	}
	return nil
}
