// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pavelpernicka/can-sensory/internal/bootloader"
	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/config"
	"github.com/pavelpernicka/can-sensory/internal/imagecrc"
)

// RunUpdater flashes a firmware image into the configured device's
// application region and, when boot is set, starts it afterwards.
func RunUpdater(firmwarePath string, boot bool) error {
	if err := config.InitGlobal("./sensory_config.txt"); err != nil {
		return fmt.Errorf("updater: config init failed: %w", err)
	}
	cfg := config.Get()

	image, err := os.ReadFile(firmwarePath)
	if err != nil {
		return fmt.Errorf("updater: read image: %w", err)
	}
	crc := imagecrc.Checksum(image)
	log.Printf("updater: image %s: %d bytes, crc32 0x%08X", firmwarePath, len(image), crc)

	bus, err := canbus.OpenSLCAN(cfg.CANSerialPort)
	if err != nil {
		return fmt.Errorf("updater: %w", err)
	}
	defer bus.Close()

	ctx := context.Background()
	c := bootloader.NewClient(bus, cfg.DeviceID)

	info, err := c.Ping(ctx, true)
	if err != nil {
		return fmt.Errorf("updater: %w", err)
	}
	log.Printf("updater: device 0x%02X in bootloader, proto %d", info.DeviceID, info.Proto)

	before, err := c.Check(ctx)
	if err != nil {
		return fmt.Errorf("updater: %w", err)
	}
	if before.Valid {
		log.Printf("updater: current image: %d bytes, crc32 0x%08X", before.Size, before.CRC32)
		if before.Size == uint32(len(image)) && before.CRC32 == crc {
			log.Println("updater: device already runs this image")
			if boot {
				return c.BootApp(ctx)
			}
			return nil
		}
	} else {
		log.Println("updater: no valid image on device")
	}

	lastPct := -1
	err = c.Flash(ctx, image, func(sent, total int) {
		pct := sent * 100 / total
		if pct/10 != lastPct/10 {
			log.Printf("updater: %3d%% (%d/%d bytes)", pct, sent, total)
			lastPct = pct
		}
	})
	if err != nil {
		return fmt.Errorf("updater: %w", err)
	}

	after, err := c.Check(ctx)
	if err != nil {
		return fmt.Errorf("updater: %w", err)
	}
	if !after.Valid || after.CRC32 != crc || after.Size != uint32(len(image)) {
		return fmt.Errorf("updater: verify failed: device reports valid=%t size=%d crc32 0x%08X",
			after.Valid, after.Size, after.CRC32)
	}
	log.Println("updater: image committed and verified")

	if boot {
		if err := c.BootApp(ctx); err != nil {
			return fmt.Errorf("updater: %w", err)
		}
		log.Println("updater: application started")
	}
	return nil
}
