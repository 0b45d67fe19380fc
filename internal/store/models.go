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
	"time"

	"github.com/google/uuid"
)

// VirtualKey is the stored identity of a client key. The raw key is
// never persisted; KeyHash is its keyed digest.
type VirtualKey struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Environment string    `json:"environment"`
	Tags        []string  `json:"tags"`
	KeyHash     string    `json:"-"`
	Enabled     bool      `json:"enabled"`
	PolicyID    uuid.UUID `json:"policy_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Policy is the bundle of limits applied to every request bearing a key
// that references it. Nil limit fields mean "not enforced". The JSON
// shape doubles as the cache encoding, so field names are stable.
type Policy struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	EndpointAllowlist []string  `json:"endpoint_allowlist"`
	RPSLimit          *int32    `json:"rps_limit"`
	RPSBurst          *int32    `json:"rps_burst"`
	MonthlyQuota      *int32    `json:"monthly_quota"`
	TimeoutMS         int32     `json:"timeout_ms"`
}

// Capacity resolves the token-bucket capacity: burst when set,
// otherwise the rate itself, never below 1. Meaningless when RPSLimit
// is nil.
func (p *Policy) Capacity() int32 {
	cap := *p.RPSLimit
	if p.RPSBurst != nil {
		cap = *p.RPSBurst
	}
	if cap < 1 {
		cap = 1
	}
	return cap
}

// Partner is a third-party API reachable at a fixed base URL. The base
// URL's origin anchors the SSRF guard.
type Partner struct {
	ID      uuid.UUID
	Name    string
	BaseURL string
}

// Credential is the most recently created upstream header pair for a
// partner. The value must never be logged.
type Credential struct {
	HeaderName  string
	HeaderValue string
}
