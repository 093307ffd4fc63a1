package main

import (
	"log"

	"github.com/pavelpernicka/can-sensory/internal/app"
)

func main() {
	log.Println("starting can-sensory monitor (CAN to MQTT bridge)")

	if err := app.RunMonitor(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
