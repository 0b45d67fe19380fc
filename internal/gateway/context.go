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
	"context"
	"time"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

// RequestAuth is the per-request authentication context built by the
// auth middleware and read by everything downstream. It owns copies of
// the key and policy; nothing mutates it after creation.
type RequestAuth struct {
	VirtualKey store.VirtualKey
	Policy     store.Policy

	// Start anchors the total request deadline and latency accounting.
	Start time.Time
}

type authCtxKey struct{}

type requestIDCtxKey struct{}

// WithAuth attaches the auth context.
func WithAuth(ctx context.Context, a *RequestAuth) context.Context {
	return context.WithValue(ctx, authCtxKey{}, a)
}

// AuthFrom returns the auth context, or false when the auth middleware
// has not run (a wiring bug, not a client error).
func AuthFrom(ctx context.Context) (*RequestAuth, bool) {
	a, ok := ctx.Value(authCtxKey{}).(*RequestAuth)
	return a, ok
}

// withRequestID attaches the request id.
func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFrom returns the request id assigned by the outermost
// middleware, or "" outside a request.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}
