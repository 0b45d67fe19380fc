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

// Package main runs the RelayKey gateway: the authenticated proxy in
// front of partner upstreams, with per-key rate limits, monthly quotas,
// endpoint allowlists and usage accounting.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/config"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/gateway"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/limiter"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/policycache"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/retrypolicy"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

func main() {
	settings, err := config.Load()
	if err != nil {
		bootLog := telemetry.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("configuration error")
	}
	log := telemetry.NewLogger(settings.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Connect(ctx, settings.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(settings.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Redis is fail-open at request time, so a cold start without
		// it still comes up; /ready reports the gap.
		log.Warn().Err(err).Msg("redis unreachable at startup")
	}

	evaler := &limiter.GoRedisEvaler{Client: rdb}

	srv := gateway.New(gateway.Deps{
		Log:      log,
		Store:    db,
		Policies: policycache.New(&policycache.GoRedisCache{Client: rdb}, db, policycache.DefaultTTL, log),

		RateLimit: limiter.NewTokenBucket(evaler, nil),
		Quota:     limiter.NewMonthlyQuota(evaler, nil),

		RetryBudget: retrypolicy.NewBudget(evaler, retrypolicy.DefaultBudgets(), log),
		RetryPolicy: retrypolicy.DefaultPolicy(),

		Usage: store.NewRecorder(db, log),

		HTTPClient: &http.Client{},
		CachePing:  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },

		KeySalt:         settings.KeySalt,
		AdminToken:      settings.AdminToken,
		StrictAllowlist: settings.StrictAllowlist,
	})

	httpSrv := &http.Server{
		Addr:              settings.BindAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", settings.BindAddr).Msg("relaykey listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
			os.Exit(1)
		}
		log.Info().Msg("shutdown complete")
	}
}
