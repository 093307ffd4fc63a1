// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all host-side tool configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDMonitor string
	MQTTClientIDWeb     string

	// Topics
	TopicEvents string
	TopicState  string
	TopicMag    string
	TopicEnv    string

	// CAN adapter
	CANSerialPort string

	// Target node
	DeviceID byte

	// Monitor
	MonitorLogInterval int // milliseconds, 0 logs every frame

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for the shared configuration:
//   - globalConfig is set once by InitGlobal and read through Get.
//   - configOnce ensures InitGlobal only runs once.
//   - configMu protects concurrent access across goroutines.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MQTTClientIDMonitor: "can-sensory-monitor",
		MQTTClientIDWeb:     "can-sensory-web",
		TopicEvents:         "sensory/events",
		TopicState:          "sensory/state",
		TopicMag:            "sensory/mag",
		TopicEnv:            "sensory/env",
		WebServerPort:       8080,
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_EVENTS":
		c.TopicEvents = value
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_ENV":
		c.TopicEnv = value

	// CAN adapter
	case "CAN_SERIAL_PORT":
		c.CANSerialPort = value

	// Target node
	case "DEVICE_ID":
		id, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid DEVICE_ID %q: %w", value, err)
		}
		if id > 0x7F {
			return fmt.Errorf("DEVICE_ID must be 0-127, got %d", id)
		}
		c.DeviceID = byte(id)

	// Monitor
	case "MONITOR_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_LOG_INTERVAL %q: %w", value, err)
		}
		c.MonitorLogInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.CANSerialPort == "" {
		return fmt.Errorf("CAN_SERIAL_PORT is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so repeated calls keep the first result.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
