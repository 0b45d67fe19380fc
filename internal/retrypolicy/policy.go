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

package retrypolicy

import "time"

// Policy bounds the attempt loop.
type Policy struct {
	// MaxAttempts counts total tries including the first (2 = 1 retry).
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy is deliberately tight: one retry, sub-second sleeps.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  300 * time.Millisecond,
	}
}

// Backoff returns the sleep before the attempt numbered attempt+1:
// exponential doubling capped at MaxBackoff, plus a small deterministic
// jitter so synchronized clients fan out. attempt is 1-based.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseBackoff << (attempt - 1)
	if d > p.MaxBackoff || d < 0 {
		d = p.MaxBackoff
	}
	jitter := time.Duration((attempt*37)%23) * time.Millisecond
	return d + jitter
}
