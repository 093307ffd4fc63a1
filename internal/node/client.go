package node

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelpernicka/can-sensory/internal/calibration"
	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/sensor"
)

// Client drives a running node's command surface from the host side of
// the bus. Stream frames arriving between exchanges are discarded.
type Client struct {
	bus   canbus.Bus
	devID uint8

	// Timeout bounds each wait for a node response.
	Timeout time.Duration
}

// NewClient targets the device devID on bus.
func NewClient(bus canbus.Bus, devID uint8) *Client {
	return &Client{bus: bus, devID: devID, Timeout: 2 * time.Second}
}

// StatusInfo is the node summary from a GET_STATUS exchange.
type StatusInfo struct {
	SensorBits uint8
	StreamBits uint8
}

// drain discards every frame already queued, so a response wait cannot
// pick up a stale stream frame from before the command.
func (c *Client) drain() error {
	for {
		_, ok, err := c.bus.TryRecv()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func (c *Client) command(p ...byte) error {
	if err := c.drain(); err != nil {
		return err
	}
	return c.bus.Send(canbus.New(canbus.CommandID(c.devID), p...))
}

// recvMatch waits for a frame on the node's status ID satisfying extra.
func (c *Client) recvMatch(ctx context.Context, match func(canbus.Frame) bool) (canbus.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	f, err := canbus.RecvMatch(ctx, c.bus, func(f canbus.Frame) bool {
		return f.ID == canbus.StatusID(c.devID) && match(f)
	})
	if err != nil {
		return canbus.Frame{}, fmt.Errorf("wait for device 0x%02X: %w", c.devID, err)
	}
	return f, nil
}

// recvStatus reads the next frame as the command's status response. The
// queue is drained before every command, so the response is the first
// frame to arrive; a status frame cannot be told apart from a stream
// frame by content alone.
func (c *Client) recvStatus(ctx context.Context, op string) (uint8, error) {
	f, err := c.recvMatch(ctx, func(canbus.Frame) bool { return true })
	if err != nil {
		return 0, err
	}
	st := Status(f.Data[0])
	if st != StatusOK {
		return f.Data[1], fmt.Errorf("%s: device answered %s (extra 0x%02X)", op, st, f.Data[1])
	}
	return f.Data[1], nil
}

// recvData waits for a data frame with the given subtype.
func (c *Client) recvData(ctx context.Context, subtype uint8) (canbus.Frame, error) {
	return c.recvMatch(ctx, func(f canbus.Frame) bool {
		return f.Data[0] == 0 && f.Data[1] == subtype
	})
}

// Ping round-trips a PING and returns the node's protocol version.
func (c *Client) Ping(ctx context.Context) (proto uint8, err error) {
	if err := c.command(CmdPing); err != nil {
		return 0, err
	}
	if _, err := c.recvStatus(ctx, "ping"); err != nil {
		return 0, err
	}
	f, err := c.recvMatch(ctx, func(f canbus.Frame) bool { return f.Data[0] == 'P' })
	if err != nil {
		return 0, err
	}
	return f.Data[5], nil
}

// EnterBootloader asks the node to reboot into its bootloader.
func (c *Client) EnterBootloader(ctx context.Context) error {
	if err := c.command(CmdEnterBootloader); err != nil {
		return err
	}
	_, err := c.recvStatus(ctx, "enter bootloader")
	return err
}

// GetStatus reads the sensor and stream summary.
func (c *Client) GetStatus(ctx context.Context) (StatusInfo, error) {
	if err := c.command(CmdGetStatus); err != nil {
		return StatusInfo{}, err
	}
	if _, err := c.recvStatus(ctx, "get status"); err != nil {
		return StatusInfo{}, err
	}
	f, err := c.recvData(ctx, FrameStatus)
	if err != nil {
		return StatusInfo{}, err
	}
	return StatusInfo{SensorBits: f.Data[2], StreamBits: f.Data[3]}, nil
}

// GetCalib reads one calibration field.
func (c *Client) GetCalib(ctx context.Context, field calibration.Field) (int16, error) {
	if err := c.command(CmdCalibGet, uint8(field)); err != nil {
		return 0, err
	}
	if _, err := c.recvStatus(ctx, "calib get"); err != nil {
		return 0, err
	}
	f, err := c.recvData(ctx, FrameCalibValue)
	if err != nil {
		return 0, err
	}
	return int16(uint16(f.Data[3]) | uint16(f.Data[4])<<8), nil
}

// SetCalib writes one calibration field and returns the echoed value.
func (c *Client) SetCalib(ctx context.Context, field calibration.Field, value int16) (int16, error) {
	if err := c.command(CmdCalibSet, uint8(field), uint8(value), uint8(uint16(value)>>8)); err != nil {
		return 0, err
	}
	if _, err := c.recvStatus(ctx, "calib set"); err != nil {
		return 0, err
	}
	f, err := c.recvData(ctx, FrameCalibValue)
	if err != nil {
		return 0, err
	}
	return int16(uint16(f.Data[3]) | uint16(f.Data[4])<<8), nil
}

// calibOp runs one of the save/load/reset/capture commands and waits for
// its info frame.
func (c *Client) calibOp(ctx context.Context, cmd uint8, op string) error {
	if err := c.command(cmd); err != nil {
		return err
	}
	if _, err := c.recvStatus(ctx, op); err != nil {
		return err
	}
	f, err := c.recvData(ctx, FrameCalibInfo)
	if err != nil {
		return err
	}
	if f.Data[3] != 0 {
		return fmt.Errorf("%s: device reported result %d", op, f.Data[3])
	}
	return nil
}

// SaveCalib persists the node's live calibration to flash.
func (c *Client) SaveCalib(ctx context.Context) error {
	return c.calibOp(ctx, CmdCalibSave, "calib save")
}

// LoadCalib reloads calibration from flash.
func (c *Client) LoadCalib(ctx context.Context) error {
	return c.calibOp(ctx, CmdCalibLoad, "calib load")
}

// ResetCalib restores compiled-in defaults.
func (c *Client) ResetCalib(ctx context.Context) error {
	return c.calibOp(ctx, CmdCalibReset, "calib reset")
}

// CaptureEarth stores the current field vector as the earth reference.
func (c *Client) CaptureEarth(ctx context.Context) error {
	return c.calibOp(ctx, CmdCalibCapture, "capture earth")
}

// SetInterval changes one stream's transmit interval.
func (c *Client) SetInterval(ctx context.Context, stream int, intervalMS uint16) error {
	if err := c.command(CmdSetInterval, uint8(stream), uint8(intervalMS), uint8(intervalMS>>8)); err != nil {
		return err
	}
	_, err := c.recvStatus(ctx, "set interval")
	return err
}

// EnableStream switches one stream on or off.
func (c *Client) EnableStream(ctx context.Context, stream int, enabled bool) error {
	var on uint8
	if enabled {
		on = 1
	}
	if err := c.command(CmdSetStreamEnable, uint8(stream), on); err != nil {
		return err
	}
	_, err := c.recvStatus(ctx, "enable stream")
	return err
}

// GetHmcConfig reads the magnetometer register configuration.
func (c *Client) GetHmcConfig(ctx context.Context) (sensor.HmcConfig, error) {
	if err := c.command(CmdHmcGetCfg); err != nil {
		return sensor.HmcConfig{}, err
	}
	if _, err := c.recvStatus(ctx, "hmc get"); err != nil {
		return sensor.HmcConfig{}, err
	}
	f, err := c.recvData(ctx, FrameHmcCfg)
	if err != nil {
		return sensor.HmcConfig{}, err
	}
	return sensor.HmcConfig{
		Range:    f.Data[2],
		DataRate: f.Data[3],
		Samples:  f.Data[4],
		Mode:     f.Data[5],
	}, nil
}

// SetHmcConfig writes the magnetometer register configuration.
func (c *Client) SetHmcConfig(ctx context.Context, cfg sensor.HmcConfig) error {
	if err := c.command(CmdHmcSetCfg, cfg.Range, cfg.DataRate, cfg.Samples, cfg.Mode); err != nil {
		return err
	}
	_, err := c.recvStatus(ctx, "hmc set")
	return err
}
