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
	"net/http"
	"strings"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

// forwardedPath is the upstream-facing part of an inbound path: what
// follows /proxy/{partner}, always with a leading slash.
func forwardedPath(inbound string) string {
	parts := strings.SplitN(inbound, "/", 4)
	if len(parts) < 4 {
		return "/"
	}
	return "/" + parts[3]
}

// matchPattern applies the allowlist glob dialect:
//   - no "*": exact match
//   - trailing "/*" with prefix P: the prefix itself or anything below it
//   - any other "*" use: the non-empty literal pieces must appear in order
func matchPattern(pattern, path string) bool {
	if !strings.Contains(pattern, "*") {
		return path == pattern
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok && !strings.Contains(prefix, "*") {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	rest := path
	for _, piece := range strings.Split(pattern, "*") {
		if piece == "" {
			continue
		}
		i := strings.Index(rest, piece)
		if i < 0 {
			return false
		}
		rest = rest[i+len(piece):]
	}
	return true
}

// allowlisted reports whether path passes the policy's allowlist. An
// empty allowlist allows everything unless the gateway runs in strict
// mode.
func allowlisted(patterns []string, path string, strict bool) bool {
	if len(patterns) == 0 {
		return !strict
	}
	for _, p := range patterns {
		if matchPattern(p, path) {
			return true
		}
	}
	return false
}

// enforceAllowlist rejects forwarded paths the policy does not permit.
func (s *Server) enforceAllowlist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		auth, ok := AuthFrom(ctx)
		if !ok {
			http.Error(w, "missing auth context", http.StatusInternalServerError)
			return
		}

		path := r.URL.Path
		if allowlisted(auth.Policy.EndpointAllowlist, forwardedPath(path), s.strictAllowlist) {
			next.ServeHTTP(w, r)
			return
		}

		s.usage.Record(ctx, store.UsageEvent{
			VirtualKeyID:  auth.VirtualKey.ID,
			PartnerName:   partnerFromPath(path),
			Path:          path,
			Forwarded:     false,
			BlockedReason: store.BlockEndpointNotAllowed,
			LatencyMS:     s.clock.Since(auth.Start).Milliseconds(),
		})
		http.Error(w, "Endpoint not allowed", http.StatusForbidden)
	})
}
