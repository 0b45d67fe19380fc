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

// Package keygen mints raw virtual keys. The raw key is shown to the
// caller exactly once at creation time; only its keyed digest persists.
package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// opaqueBytes sizes the random suffix: 24 bytes -> 32 base64url chars.
const opaqueBytes = 24

// NewKey returns a fresh raw key of the form rk_<environment>_<opaque>.
// The opaque part is URL-safe base64 without padding.
func NewKey(environment string) (string, error) {
	buf := make([]byte, opaqueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("keygen: read random: %w", err)
	}
	suffix := base64.RawURLEncoding.EncodeToString(buf)
	return fmt.Sprintf("rk_%s_%s", environment, suffix), nil
}
