package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/pavelpernicka/can-sensory/internal/calibration"
	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/config"
	"github.com/pavelpernicka/can-sensory/internal/node"
)

// Calibration field names as accepted on the command line, in wire order.
var calibFieldNames = map[string]calibration.Field{
	"center_x":    calibration.FieldCenterX,
	"center_y":    calibration.FieldCenterY,
	"center_z":    calibration.FieldCenterZ,
	"rotate_xy":   calibration.FieldRotateXY,
	"rotate_xz":   calibration.FieldRotateXZ,
	"rotate_yz":   calibration.FieldRotateYZ,
	"keepout_rad": calibration.FieldKeepoutRad,
	"z_limit":     calibration.FieldZLimit,
	"data_radius": calibration.FieldDataRadius,
	"mag_off_x":   calibration.FieldMagOffsetX,
	"mag_off_y":   calibration.FieldMagOffsetY,
	"mag_off_z":   calibration.FieldMagOffsetZ,
	"earth_x":     calibration.FieldEarthX,
	"earth_y":     calibration.FieldEarthY,
	"earth_z":     calibration.FieldEarthZ,
	"earth_valid": calibration.FieldEarthValid,
	"num_sectors": calibration.FieldNumSectors,
	"z_max":       calibration.FieldZMax,
	"elev_curve":  calibration.FieldElevCurve,
}

func parseField(name string) (calibration.Field, error) {
	if f, ok := calibFieldNames[strings.ToLower(name)]; ok {
		return f, nil
	}
	// Numeric field IDs work too.
	if id, err := strconv.ParseUint(name, 0, 8); err == nil {
		f := calibration.Field(id)
		if f >= calibration.FieldFirst && f <= calibration.FieldLast {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown calibration field %q", name)
}

func fieldName(f calibration.Field) string {
	for name, id := range calibFieldNames {
		if id == f {
			return name
		}
	}
	return fmt.Sprintf("field_%d", f)
}

// RunCalibTool executes one calibration subcommand against the
// configured device: get [field], set <field> <value>, save, load,
// reset, capture, status, ping.
func RunCalibTool(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: calibtool <get|set|save|load|reset|capture|status|ping> [args]")
	}

	if err := config.InitGlobal("./sensory_config.txt"); err != nil {
		return fmt.Errorf("calibtool: config init failed: %w", err)
	}
	cfg := config.Get()

	bus, err := canbus.OpenSLCAN(cfg.CANSerialPort)
	if err != nil {
		return fmt.Errorf("calibtool: %w", err)
	}
	defer bus.Close()

	ctx := context.Background()
	c := node.NewClient(bus, cfg.DeviceID)

	switch args[0] {
	case "ping":
		proto, err := c.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("device 0x%02X alive, proto %d\n", cfg.DeviceID, proto)
		return nil

	case "status":
		info, err := c.GetStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("sensors: 0x%02X  streams: 0x%02X\n", info.SensorBits, info.StreamBits)
		return nil

	case "get":
		if len(args) >= 2 {
			f, err := parseField(args[1])
			if err != nil {
				return err
			}
			v, err := c.GetCalib(ctx, f)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s = %d\n", fieldName(f), v)
			return nil
		}
		for f := calibration.FieldFirst; f <= calibration.FieldLast; f++ {
			v, err := c.GetCalib(ctx, f)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s = %d\n", fieldName(f), v)
		}
		return nil

	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: calibtool set <field> <value>")
		}
		f, err := parseField(args[1])
		if err != nil {
			return err
		}
		v, err := strconv.ParseInt(args[2], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		echo, err := c.SetCalib(ctx, f, int16(v))
		if err != nil {
			return err
		}
		fmt.Printf("%-12s = %d\n", fieldName(f), echo)
		return nil

	case "save":
		if err := c.SaveCalib(ctx); err != nil {
			return err
		}
		log.Println("calibtool: calibration saved to flash")
		return nil

	case "load":
		if err := c.LoadCalib(ctx); err != nil {
			return err
		}
		log.Println("calibtool: calibration reloaded from flash")
		return nil

	case "reset":
		if err := c.ResetCalib(ctx); err != nil {
			return err
		}
		log.Println("calibtool: calibration reset to defaults")
		return nil

	case "capture":
		if err := c.CaptureEarth(ctx); err != nil {
			return err
		}
		for _, f := range []calibration.Field{
			calibration.FieldEarthX,
			calibration.FieldEarthY,
			calibration.FieldEarthZ,
		} {
			v, err := c.GetCalib(ctx, f)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s = %d\n", fieldName(f), v)
		}
		return nil

	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}
