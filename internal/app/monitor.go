// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/config"
)

// RunMonitor attaches to the CAN adapter, decodes node telemetry, prints
// it and republishes it as JSON over MQTT.
func RunMonitor() error {
	if err := config.InitGlobal("./sensory_config.txt"); err != nil {
		return fmt.Errorf("monitor: config init failed: %w", err)
	}
	cfg := config.Get()

	bus, err := canbus.OpenSLCAN(cfg.CANSerialPort)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	defer bus.Close()
	log.Printf("monitor: attached to CAN adapter on %s", cfg.CANSerialPort)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMonitor)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("monitor: mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)

	topics := map[string]string{
		topicKeyEvents: cfg.TopicEvents,
		topicKeyState:  cfg.TopicState,
		topicKeyMag:    cfg.TopicMag,
		topicKeyEnv:    cfg.TopicEnv,
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("monitor: shutting down")
		cancel()
	}()

	var lastLog time.Time
	for {
		f, err := canbus.Recv(ctx, bus)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("monitor: receive: %w", err)
		}

		key, payload, ok := decodeTelemetry(f, time.Now())
		if !ok {
			continue
		}

		printTelemetry(key, payload, &lastLog, cfg.MonitorLogInterval)

		b, err := json.Marshal(payload)
		if err != nil {
			log.Printf("monitor: marshal: %v", err)
			continue
		}
		token := client.Publish(topics[key], 0, false, b)
		token.Wait()
		if token.Error() != nil {
			log.Printf("monitor: publish %s: %v", topics[key], token.Error())
		}
	}
}

// printTelemetry writes one console line per message. Events always
// print; the periodic streams are rate-limited by the configured log
// interval so a fast mag stream does not drown the terminal.
func printTelemetry(key string, payload interface{}, lastLog *time.Time, intervalMS int) {
	if key != topicKeyEvents && intervalMS > 0 {
		if time.Since(*lastLog) < time.Duration(intervalMS)*time.Millisecond {
			return
		}
		*lastLog = time.Now()
	}

	switch m := payload.(type) {
	case EventMsg:
		fmt.Printf("[EVT ] dev=0x%02X %-26s sector=%d value=%d speed=%d t=%dms\n",
			m.Device, m.Name, m.Sector, m.Value, m.Speed, m.NodeMS)
	case StateMsg:
		fmt.Printf("[STAT] dev=0x%02X sector=%d elevation=%d\n",
			m.Device, m.Sector, m.Elevation)
	case MagMsg:
		fmt.Printf("[MAG ] dev=0x%02X mx=%6d my=%6d mz=%6d\n",
			m.Device, m.Mx, m.My, m.Mz)
	case EnvMsg:
		fmt.Printf("[ENV ] dev=0x%02X temp=%.2f°C rh=%.2f%% valid=%t\n",
			m.Device, m.TempC, m.RHPct, m.Valid)
	}
}
