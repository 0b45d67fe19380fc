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

// Package keyhash derives the stored digest of a raw virtual key.
//
// The digest is HMAC-SHA256(salt, raw) rendered as lowercase hex, so it
// is deterministic across processes and useless without the server-side
// salt. Raw keys are never stored; only this digest is.
package keyhash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the keyed digest of raw under salt as a 64-char lowercase
// hex string. Same inputs always produce the same output.
func Sum(salt, raw string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
