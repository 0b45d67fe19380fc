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

// VirtualKeyByHash looks a key up by its digest. Absent keys return
// (nil, nil): authentication treats that as 401, not 500.
func (s *Store) VirtualKeyByHash(ctx context.Context, keyHash string) (*VirtualKey, error) {
	var vk VirtualKey
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, environment, tags, key_hash, enabled, policy_id, created_at
		FROM virtual_keys
		WHERE key_hash = $1`,
		keyHash,
	).Scan(&vk.ID, &vk.Name, &vk.Environment, &vk.Tags, &vk.KeyHash, &vk.Enabled, &vk.PolicyID, &vk.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: virtual key by hash: %w", err)
	}
	return &vk, nil
}

// InsertVirtualKey stores a new enabled key and returns its id.
func (s *Store) InsertVirtualKey(ctx context.Context, name, environment string, tags []string, keyHash string, policyID uuid.UUID) (uuid.UUID, error) {
	if tags == nil {
		tags = []string{}
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO virtual_keys (name, environment, tags, key_hash, enabled, policy_id)
		VALUES ($1, $2, $3, $4, true, $5)
		RETURNING id`,
		name, environment, tags, keyHash, policyID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert virtual key: %w", err)
	}
	return id, nil
}

// ListVirtualKeys returns all keys, newest first. The digest stays in
// the row but is excluded from the admin JSON by the struct tag.
func (s *Store) ListVirtualKeys(ctx context.Context) ([]VirtualKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, environment, tags, key_hash, enabled, policy_id, created_at
		FROM virtual_keys
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list virtual keys: %w", err)
	}
	defer rows.Close()

	var out []VirtualKey
	for rows.Next() {
		var vk VirtualKey
		if err := rows.Scan(&vk.ID, &vk.Name, &vk.Environment, &vk.Tags, &vk.KeyHash, &vk.Enabled, &vk.PolicyID, &vk.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan virtual key: %w", err)
		}
		out = append(out, vk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list virtual keys: %w", err)
	}
	return out, nil
}
