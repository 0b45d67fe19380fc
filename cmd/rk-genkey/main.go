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

// Package main mints a virtual key and prints it with its digest, for
// inserting rows by hand. With -salt the digest matches what the
// gateway computes; without it only the key is printed.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keygen"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keyhash"
)

func main() {
	environment := flag.String("env", "test", "key environment segment (rk_<env>_...)")
	salt := flag.String("salt", "", "key salt; when set, also print the stored digest")
	flag.Parse()

	key, err := keygen.NewKey(*environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("key:    %s\n", key)
	if *salt != "" {
		fmt.Printf("digest: %s\n", keyhash.Sum(*salt, key))
	}
}
