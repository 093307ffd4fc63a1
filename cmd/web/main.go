// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/pavelpernicka/can-sensory/internal/app"
)

func main() {
	log.Println("starting can-sensory web server (MQTT subscriber)")

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
