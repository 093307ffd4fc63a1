// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/pavelpernicka/can-sensory/internal/app"
)

func main() {
	scenario := flag.String("scenario", "", "replay a YAML magnetometer scenario instead of reading hardware")
	flag.Parse()

	log.Println("starting can-sensory node")

	if err := app.RunNode(*scenario); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
