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

// Package limiter holds the two Redis-side admission primitives: a
// token bucket for per-second rate limiting and a monthly quota
// counter. Both decisions execute as a single Lua script so refill,
// check and increment are one atomic step — limiter state is
// linearizable per key across every gateway process.
//
// Callers decide the failure policy. Both primitives surface transport
// errors unchanged; the middleware fails open on them.
package limiter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Evaler abstracts the minimal surface we need from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 (Cmdable.Eval)
// or any equivalent.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler adapts a go-redis client to Evaler.
type GoRedisEvaler struct {
	Client redis.UniversalClient
}

// Eval runs the script and returns the raw reply.
func (g GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.Client.Eval(ctx, script, keys, args...).Result()
}

// Keys layout helpers (public for interoperability with other components)

// RateLimitKey is the token-bucket hash for a virtual key.
func RateLimitKey(vkID uuid.UUID) string { return fmt.Sprintf("rl:%s", vkID) }

// QuotaKey is the monthly counter for a virtual key in a given UTC
// month (yyyymm like "202608").
func QuotaKey(vkID uuid.UUID, yyyymm string) string { return fmt.Sprintf("quota:%s:%s", vkID, yyyymm) }

// replyAllowed extracts the leading 0/1 admission flag from a script
// reply of the form {allowed, ...}.
func replyAllowed(reply interface{}) (bool, error) {
	arr, ok := reply.([]interface{})
	if !ok || len(arr) == 0 {
		return false, fmt.Errorf("limiter: unexpected script reply %T", reply)
	}
	allowed, ok := arr[0].(int64)
	if !ok {
		return false, fmt.Errorf("limiter: unexpected allowed flag %T", arr[0])
	}
	return allowed == 1, nil
}
