package app

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/pavelpernicka/can-sensory/internal/bootloader"
	"github.com/pavelpernicka/can-sensory/internal/calibration"
	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/config"
	"github.com/pavelpernicka/can-sensory/internal/detector"
	"github.com/pavelpernicka/can-sensory/internal/flash"
	"github.com/pavelpernicka/can-sensory/internal/node"
	"github.com/pavelpernicka/can-sensory/internal/sensor"
	"github.com/pavelpernicka/can-sensory/internal/sim"
)

// RunNode runs the sensor node loop on the configured CAN adapter. With
// a scenario path the magnetometer is replayed from the YAML track and
// the run ends when the track does; otherwise the HMC5883L is opened
// over I2C and the loop runs until interrupted. An ENTER_BOOTLOADER
// command drops the device into bootloader mode on the same bus; a
// successful BOOT_APP brings the node loop back up.
func RunNode(scenarioPath string) error {
	if err := config.InitGlobal("./sensory_config.txt"); err != nil {
		return fmt.Errorf("node: config init failed: %w", err)
	}
	cfg := config.Get()

	bus, err := canbus.OpenSLCAN(cfg.CANSerialPort)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}
	defer bus.Close()
	log.Printf("node: attached to CAN adapter on %s", cfg.CANSerialPort)

	// RAM-backed flash stands in for the MCU's calibration and metadata
	// pages; calibration lives for the process lifetime.
	mem := flash.NewMem(flash.DefaultLayout())
	store := calibration.NewStore(mem, mem.Layout())
	if err := store.Load(); err != nil {
		log.Printf("node: calibration: %v (using defaults)", err)
	}

	begin := time.Now()
	nowMS := func() uint32 { return uint32(time.Since(begin).Milliseconds()) }

	var (
		mag      sensor.MagSource
		hmc      sensor.HmcControl
		deadline uint32
		blCfg    = bootloader.Config{DeviceID: cfg.DeviceID}
	)
	if scenarioPath != "" {
		sc, err := sim.LoadFile(scenarioPath)
		if err != nil {
			return fmt.Errorf("node: %w", err)
		}
		log.Printf("node: replaying scenario %q (%d ms)", sc.Name, sc.Duration())
		mag = sensor.MagFunc(func() (detector.MagSample, bool) {
			return sc.SampleAt(nowMS())
		})
		deadline = sc.Duration() + 1000
	} else {
		var bridge *sensor.I2CBridge
		mag, hmc, bridge, err = openHMC(store.Record())
		if err != nil {
			log.Printf("node: magnetometer unavailable: %v", err)
			mag = sensor.MagFunc(func() (detector.MagSample, bool) {
				return detector.MagSample{}, false
			})
		}
		if bridge != nil {
			blCfg.Bridge = bridge
		}
	}

	for {
		n := node.New(node.Config{
			Bus:      bus,
			Store:    store,
			Mag:      mag,
			Hmc:      hmc,
			DeviceID: cfg.DeviceID,
		})
		n.Start(nowMS())
		log.Printf("node: started as device 0x%02X", cfg.DeviceID)

		finished, err := runNodeLoop(n, nowMS, deadline)
		if err != nil {
			return fmt.Errorf("node: %w", err)
		}
		if finished {
			log.Println("node: scenario finished")
			return nil
		}

		log.Println("node: entering bootloader")
		if err := runBootloaderMode(bus, mem, blCfg); err != nil {
			return fmt.Errorf("node: bootloader: %w", err)
		}
		log.Println("node: booting application")
	}
}

// runNodeLoop ticks the node until the scenario deadline passes or the
// bootloader is requested. finished is true only for the deadline case.
func runNodeLoop(n *node.Node, nowMS func() uint32, deadline uint32) (finished bool, err error) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		now := nowMS()
		if err := n.Tick(now); err != nil {
			return false, err
		}
		if n.BootloaderRequested() {
			return false, nil
		}
		if deadline != 0 && now > deadline {
			return true, nil
		}
	}
	return false, nil
}

// runBootloaderMode serves the bootloader protocol on the shared flash
// device until the host issues a BOOT_APP against a valid image.
func runBootloaderMode(bus canbus.Bus, dev *flash.Mem, cfg bootloader.Config) error {
	h := bootloader.NewHandler(bus, dev, dev.Layout(), cfg)
	if err := h.Startup(); err != nil {
		return err
	}
	for {
		if err := h.Poll(); err != nil {
			return err
		}
		if h.BootRequested() {
			h.ClearBootRequest()
			if _, ok := bootloader.IsAppValid(dev, dev.Layout()); !ok {
				if err := h.ReportBootError(bootloader.BootErrAppInvalid); err != nil {
					return err
				}
				continue
			}
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// openHMC initializes the periph host, opens the default I2C bus and
// probes the magnetometer with the calibrated register configuration.
// The raw bus is also handed back for the bootloader's I2C bridge.
func openHMC(rec calibration.Record) (sensor.MagSource, sensor.HmcControl, *sensor.I2CBridge, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("i2c open: %w", err)
	}
	dev, err := sensor.NewHMC5883L(bus, sensor.HmcConfig{
		Range:    rec.HmcRange,
		DataRate: rec.HmcDataRate,
		Samples:  rec.HmcSamples,
		Mode:     rec.HmcMode,
	})
	if err != nil {
		bus.Close()
		return nil, nil, nil, err
	}
	return dev, dev, sensor.NewI2CBridge(bus), nil
}
