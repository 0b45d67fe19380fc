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
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keyhash"
)

const (
	virtualKeyHeader = "x-relaykey"
	adminTokenHeader = "x-admin-token"
)

// authenticate resolves the x-relaykey header to a virtual key and its
// policy bundle and attaches both to the context. Auth failures carry
// no authenticated identity, so no usage event is written here.
//
// Store and policy lookups are fail-closed: a broken store rejects the
// request rather than letting unauthenticated traffic through.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := strings.TrimSpace(r.Header.Get(virtualKeyHeader))
		if raw == "" {
			http.Error(w, "missing x-relaykey", http.StatusUnauthorized)
			return
		}

		// The raw key stops existing here; only the digest travels on.
		digest := keyhash.Sum(s.keySalt, raw)

		vk, err := s.store.VirtualKeyByHash(ctx, digest)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("virtual key lookup failed")
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		if vk == nil {
			http.Error(w, "invalid virtual key", http.StatusUnauthorized)
			return
		}
		if !vk.Enabled {
			http.Error(w, "virtual key disabled", http.StatusUnauthorized)
			return
		}

		policy, err := s.policies.Load(ctx, vk.PolicyID)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("policy_id", vk.PolicyID.String()).
				Msg("policy load failed")
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		if policy == nil {
			zerolog.Ctx(ctx).Error().
				Str("policy_id", vk.PolicyID.String()).
				Msg("virtual key references missing policy")
			http.Error(w, "policy not found", http.StatusInternalServerError)
			return
		}

		auth := &RequestAuth{
			VirtualKey: *vk,
			Policy:     *policy,
			Start:      s.clock.Now(),
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(ctx, auth)))
	})
}

// requireAdmin gates the admin surface on the configured token. An
// unconfigured token is a server misconfiguration, never an open door.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			http.Error(w, "admin not configured", http.StatusInternalServerError)
			return
		}
		token := r.Header.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
