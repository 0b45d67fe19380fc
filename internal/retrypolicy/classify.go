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

// Package retrypolicy decides whether a failed upstream attempt may be
// sent again: classification of statuses and transport errors, the
// per-partner 429 switch, the exponential backoff schedule, and the
// dual minute-bucketed retry budget in Redis.
package retrypolicy

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// RetryClass says whether a failure is worth a second attempt.
type RetryClass int

const (
	NoRetry RetryClass = iota
	Retryable
)

// ClassifyStatus marks the transient upstream statuses retryable.
// 429 passes classification but is additionally gated by the partner
// profile; everything else (2xx, 3xx, remaining 4xx) is final.
func ClassifyStatus(status int) RetryClass {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return Retryable
	default:
		return NoRetry
	}
}

// ClassifyTransport marks timeouts and connect failures retryable.
// Anything else — TLS handshake failures, body decode errors, protocol
// violations — is final: the upstream saw the request, or never will.
func ClassifyTransport(err error) RetryClass {
	if err == nil {
		return NoRetry
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}
	var op *net.OpError
	if errors.As(err, &op) && op.Op == "dial" {
		return Retryable
	}
	return NoRetry
}

// Profile is the per-partner retry switch. 429 is retried only when the
// partner opts in; all other retryable statuses pass unconditionally.
type Profile struct {
	Retry429 bool
}

// ProfileSource resolves the profile for a partner on every call.
type ProfileSource interface {
	ProfileFor(ctx context.Context, partnerName string) Profile
}

// DefaultProfiles returns the safe default for every partner.
// TODO: back this with the partners table once the profile column lands.
type DefaultProfiles struct{}

func (DefaultProfiles) ProfileFor(ctx context.Context, partnerName string) Profile {
	return Profile{Retry429: false}
}

// StatusRetryAllowed applies the profile gate on top of classification.
func StatusRetryAllowed(p Profile, status int) bool {
	if status == http.StatusTooManyRequests {
		return p.Retry429
	}
	return true
}
