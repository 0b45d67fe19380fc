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
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keygen"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keyhash"
)

type createVirtualKeyRequest struct {
	Name        string   `json:"name"`
	Environment string   `json:"environment"`
	Tags        []string `json:"tags"`
	PolicyID    string   `json:"policy_id"`
}

type createVirtualKeyResponse struct {
	ID  uuid.UUID `json:"id"`
	Key string    `json:"key"`
}

type virtualKeySummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Environment string    `json:"environment"`
	Tags        []string  `json:"tags"`
	Enabled     bool      `json:"enabled"`
	PolicyID    uuid.UUID `json:"policy_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// handleCreateVirtualKey mints a key, stores only its hash, and returns
// the plaintext exactly once. The plaintext is never logged.
func (s *Server) handleCreateVirtualKey(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	var req createVirtualKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Environment = strings.TrimSpace(req.Environment)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.Environment == "" {
		http.Error(w, "environment is required", http.StatusBadRequest)
		return
	}
	policyID, err := uuid.Parse(req.PolicyID)
	if err != nil {
		http.Error(w, "invalid policy_id", http.StatusBadRequest)
		return
	}

	policy, err := s.policies.Load(r.Context(), policyID)
	if err != nil {
		log.Error().Err(err).Msg("policy lookup failed")
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if policy == nil {
		http.Error(w, "policy not found", http.StatusBadRequest)
		return
	}

	rawKey, err := keygen.NewKey(req.Environment)
	if err != nil {
		log.Error().Err(err).Msg("key generation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	hash := keyhash.Sum(s.keySalt, rawKey)

	id, err := s.store.InsertVirtualKey(r.Context(), req.Name, req.Environment, req.Tags, hash, policyID)
	if err != nil {
		log.Error().Err(err).Msg("virtual key insert failed")
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	log.Info().Str("vk_id", id.String()).Str("name", req.Name).Msg("virtual key created")
	writeJSON(w, http.StatusCreated, createVirtualKeyResponse{ID: id, Key: rawKey})
}

func (s *Server) handleListVirtualKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListVirtualKeys(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("virtual key list failed")
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	out := make([]virtualKeySummary, 0, len(keys))
	for _, vk := range keys {
		tags := vk.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, virtualKeySummary{
			ID:          vk.ID,
			Name:        vk.Name,
			Environment: vk.Environment,
			Tags:        tags,
			Enabled:     vk.Enabled,
			PolicyID:    vk.PolicyID,
			CreatedAt:   vk.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
