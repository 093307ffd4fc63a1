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
	image := flag.String("image", "", "firmware image file to flash")
	boot := flag.Bool("boot", true, "start the application after a successful update")
	flag.Parse()

	if *image == "" {
		log.Fatal("usage: updater -image <firmware.bin> [-boot=false]")
	}

	if err := app.RunUpdater(*image, *boot); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
