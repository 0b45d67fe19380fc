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

// Package gateway is the request pipeline: request-id and logging
// layers, key authentication, limit enforcement, endpoint allowlist,
// the proxy handler itself, and the admin surface. Dependencies enter
// through small interfaces so handlers are testable with fakes.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/retrypolicy"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

const (
	// maxBodyBytes caps inbound request bodies at the router.
	maxBodyBytes = 2 << 20 // 2 MiB

	// outerTimeout bounds every request end to end, regardless of
	// policy timeouts.
	outerTimeout = 30 * time.Second
)

// Store is the relational surface the pipeline needs. *store.Store
// satisfies it; tests use fakes.
type Store interface {
	VirtualKeyByHash(ctx context.Context, keyHash string) (*store.VirtualKey, error)
	PartnerByName(ctx context.Context, name string) (*store.Partner, error)
	CredentialForPartner(ctx context.Context, partnerID uuid.UUID) (*store.Credential, error)
	InsertVirtualKey(ctx context.Context, name, environment string, tags []string, keyHash string, policyID uuid.UUID) (uuid.UUID, error)
	ListVirtualKeys(ctx context.Context) ([]store.VirtualKey, error)
	Ping(ctx context.Context) error
}

// PolicyLoader resolves a policy bundle by id (read-through cache in
// production).
type PolicyLoader interface {
	Load(ctx context.Context, policyID uuid.UUID) (*store.Policy, error)
}

// RateLimiter is the per-second token bucket.
type RateLimiter interface {
	Allow(ctx context.Context, vkID uuid.UUID, rate, capacity int32) (bool, error)
}

// QuotaLimiter is the monthly counter.
type QuotaLimiter interface {
	AllowAndIncr(ctx context.Context, vkID uuid.UUID, limit int32) (bool, error)
}

// RetryBudget gates retries behind the dual minute buckets.
type RetryBudget interface {
	AllowRetryDual(ctx context.Context, partnerName string, vkID uuid.UUID) retrypolicy.Decision
}

// UsageRecorder appends one event per terminal outcome.
type UsageRecorder interface {
	Record(ctx context.Context, ev store.UsageEvent)
}

// Deps wires a Server. Log, Store, Policies, Usage and KeySalt are
// required; everything else has a sensible default.
type Deps struct {
	Log   zerolog.Logger
	Store Store

	Policies  PolicyLoader
	RateLimit RateLimiter
	Quota     QuotaLimiter

	RetryBudget RetryBudget
	Profiles    retrypolicy.ProfileSource
	RetryPolicy retrypolicy.Policy

	Usage UsageRecorder

	// HTTPClient is the shared outbound client; attempt timeouts come
	// from per-request contexts, so it carries no global timeout.
	HTTPClient *http.Client

	// CachePing reports Redis health for /ready.
	CachePing func(ctx context.Context) error

	KeySalt    string
	AdminToken string

	// StrictAllowlist makes an empty endpoint allowlist deny.
	StrictAllowlist bool

	Clock clockwork.Clock
}

// Server handles all inbound HTTP for the gateway.
type Server struct {
	log   zerolog.Logger
	store Store

	policies  PolicyLoader
	rateLimit RateLimiter
	quota     QuotaLimiter

	retryBudget RetryBudget
	profiles    retrypolicy.ProfileSource
	retryPolicy retrypolicy.Policy

	usage UsageRecorder

	httpClient *http.Client
	cachePing  func(ctx context.Context) error

	keySalt    string
	adminToken string

	strictAllowlist bool

	clock clockwork.Clock
}

// New builds a Server from Deps, filling defaults.
func New(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{}
	}
	if d.Profiles == nil {
		d.Profiles = retrypolicy.DefaultProfiles{}
	}
	if d.RetryPolicy.MaxAttempts == 0 {
		d.RetryPolicy = retrypolicy.DefaultPolicy()
	}
	return &Server{
		log:             d.Log,
		store:           d.Store,
		policies:        d.Policies,
		rateLimit:       d.RateLimit,
		quota:           d.Quota,
		retryBudget:     d.RetryBudget,
		profiles:        d.Profiles,
		retryPolicy:     d.RetryPolicy,
		usage:           d.Usage,
		httpClient:      d.HTTPClient,
		cachePing:       d.CachePing,
		keySalt:         d.KeySalt,
		adminToken:      d.AdminToken,
		strictAllowlist: d.StrictAllowlist,
		clock:           d.Clock,
	}
}

// Router assembles the three sub-routers behind the global layers:
// request-id assignment, the request log span, the outer timeout and
// the body cap.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(outerTimeout))
	r.Use(limitBody)

	// public
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// admin
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(s.requireAdmin)
		ar.Post("/virtual-keys", s.handleCreateVirtualKey)
		ar.Get("/virtual-keys", s.handleListVirtualKeys)
	})

	// protected proxy surface
	r.Group(func(pr chi.Router) {
		pr.Use(s.authenticate)
		pr.Use(s.enforceLimits)
		pr.Use(s.enforceAllowlist)
		pr.Handle("/proxy/{partner}/*", http.HandlerFunc(s.handleProxy))
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady answers 200 only when both backing services respond.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "db not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if s.cachePing != nil {
		if err := s.cachePing(r.Context()); err != nil {
			http.Error(w, "redis not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
