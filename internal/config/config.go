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

// Package config loads the gateway settings from the environment. All
// process-wide knobs live here; nothing else reads os.Getenv.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds every environment-provided setting of the gateway.
// Required fields missing from the environment abort startup.
type Settings struct {
	// BindAddr is the listen address of the HTTP server.
	BindAddr string `envconfig:"RELAYKEY_BIND_ADDR" default:"0.0.0.0:8080"`

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// RedisURL is the Redis connection URL (redis://...).
	RedisURL string `envconfig:"REDIS_URL" required:"true"`

	// LogLevel filters log output (zerolog level names).
	LogLevel string `envconfig:"RELAYKEY_LOG" default:"info"`

	// KeySalt keys the virtual-key digest. Its absence is a fatal
	// configuration error: without it no key can ever authenticate.
	KeySalt string `envconfig:"RELAYKEY_KEY_SALT" required:"true"`

	// AdminToken gates the /admin surface. When empty, admin requests
	// are rejected with 500 rather than silently allowed.
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	// StrictAllowlist makes an empty endpoint allowlist deny everything
	// instead of allowing everything.
	StrictAllowlist bool `envconfig:"RELAYKEY_STRICT_ALLOWLIST" default:"false"`
}

// Load reads Settings from the environment.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}
