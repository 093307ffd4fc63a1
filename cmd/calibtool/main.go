package main

import (
	"flag"
	"log"

	"github.com/pavelpernicka/can-sensory/internal/app"
)

func main() {
	flag.Parse()

	if err := app.RunCalibTool(flag.Args()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
