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

// Package main seeds a development database: the "example" partner
// pointed at httpbin.org, a demo credential, a default policy and one
// test virtual key. The plaintext key is printed once on stdout and
// exists nowhere else.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keygen"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keyhash"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/telemetry"
)

func i32(v int32) *int32 { return &v }

func main() {
	log := telemetry.NewLogger("info")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	keySalt := os.Getenv("RELAYKEY_KEY_SALT")
	if keySalt == "" {
		log.Fatal().Msg("RELAYKEY_KEY_SALT is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer db.Close()

	partnerID, err := db.UpsertPartner(ctx, "example", "https://httpbin.org")
	if err != nil {
		log.Fatal().Err(err).Msg("seed partner failed")
	}
	if err := db.InsertCredential(ctx, partnerID, "X-Upstream-Key", "demo-upstream-secret"); err != nil {
		log.Fatal().Err(err).Msg("seed credential failed")
	}

	policyID, err := db.InsertPolicy(ctx, store.Policy{
		Name:              "default",
		EndpointAllowlist: []string{"/get", "/status/*", "/anything/*"},
		RPSLimit:          i32(10),
		RPSBurst:          i32(20),
		MonthlyQuota:      i32(10000),
		TimeoutMS:         10000,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed policy failed")
	}

	rawKey, err := keygen.NewKey("test")
	if err != nil {
		log.Fatal().Err(err).Msg("key generation failed")
	}
	vkID, err := db.InsertVirtualKey(ctx, "dev", "test", []string{"seed"}, keyhash.Sum(keySalt, rawKey), policyID)
	if err != nil {
		log.Fatal().Err(err).Msg("seed virtual key failed")
	}

	log.Info().
		Str("partner_id", partnerID.String()).
		Str("policy_id", policyID.String()).
		Str("vk_id", vkID.String()).
		Msg("seed complete")
	fmt.Printf("virtual key (shown once): %s\n", rawKey)
}
