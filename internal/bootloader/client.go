// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bootloader

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/imagecrc"
)

// Client drives a remote device's bootloader from the host side of the
// bus: ping, image check, the START/DATA/END upload sequence and the
// boot-app handover.
type Client struct {
	bus   canbus.Bus
	devID uint8

	// Timeout bounds each wait for a device response.
	Timeout time.Duration
}

// NewClient targets the device devID on bus.
func NewClient(bus canbus.Bus, devID uint8) *Client {
	return &Client{bus: bus, devID: devID, Timeout: 2 * time.Second}
}

// PongInfo is the device identity from a PING response.
type PongInfo struct {
	DeviceID uint8
	Proto    uint8
	Staying  bool
}

// CheckInfo is the committed-image summary from a CHECK response.
type CheckInfo struct {
	Valid    bool
	Updating bool
	Size     uint32
	CRC32    uint32
	DeviceID uint8
	Proto    uint8
}

func (c *Client) command(p ...byte) error {
	return c.bus.Send(canbus.New(canbus.CommandID(c.devID), p...))
}

// recv waits for the next frame on the device's status ID.
func (c *Client) recv(ctx context.Context) (canbus.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	f, err := canbus.RecvMatch(ctx, c.bus, func(f canbus.Frame) bool {
		return f.ID == canbus.StatusID(c.devID)
	})
	if err != nil {
		return canbus.Frame{}, fmt.Errorf("wait for device 0x%02X: %w", c.devID, err)
	}
	return f, nil
}

// expectOK consumes one status frame and fails on anything but OK.
func (c *Client) expectOK(ctx context.Context, op string) (extra uint8, err error) {
	f, err := c.recv(ctx)
	if err != nil {
		return 0, err
	}
	st := Status(f.Data[0])
	if st != StatusOK {
		return f.Data[1], fmt.Errorf("%s: device answered %s (extra 0x%02X)", op, st, f.Data[1])
	}
	return f.Data[1], nil
}

// Ping checks the device is in the bootloader; stay asks it to hold
// there past its autorun window.
func (c *Client) Ping(ctx context.Context, stay bool) (PongInfo, error) {
	p := []byte{CmdPing}
	if stay {
		p = append(p, StayByte)
	}
	if err := c.command(p...); err != nil {
		return PongInfo{}, err
	}
	if _, err := c.expectOK(ctx, "ping"); err != nil {
		return PongInfo{}, err
	}
	f, err := c.recv(ctx)
	if err != nil {
		return PongInfo{}, err
	}
	if f.Data[0] != 'P' || f.Data[1] != 'O' {
		return PongInfo{}, fmt.Errorf("ping: unexpected response % X", f.Data)
	}
	return PongInfo{DeviceID: f.Data[4], Proto: f.Data[5], Staying: f.Data[6] != 0}, nil
}

// Check queries the committed application image.
func (c *Client) Check(ctx context.Context) (CheckInfo, error) {
	if err := c.command(CmdCheck); err != nil {
		return CheckInfo{}, err
	}
	summary, err := c.recv(ctx)
	if err != nil {
		return CheckInfo{}, err
	}
	if summary.Data[1] != FrameCheckSummary {
		return CheckInfo{}, fmt.Errorf("check: unexpected frame % X", summary.Data)
	}
	crcFrame, err := c.recv(ctx)
	if err != nil {
		return CheckInfo{}, err
	}
	if crcFrame.Data[1] != FrameCheckCRC {
		return CheckInfo{}, fmt.Errorf("check: unexpected frame % X", crcFrame.Data)
	}
	return CheckInfo{
		Valid:    summary.Data[2] != 0,
		Updating: summary.Data[3] != 0,
		Size:     binary.LittleEndian.Uint32(summary.Data[4:8]),
		CRC32:    binary.LittleEndian.Uint32(crcFrame.Data[2:6]),
		DeviceID: crcFrame.Data[6],
		Proto:    crcFrame.Data[7],
	}, nil
}

// Flash uploads image and commits it. progress, when non-nil, is called
// after every acknowledged chunk with the byte counts.
func (c *Client) Flash(ctx context.Context, image []byte, progress func(sent, total int)) error {
	if len(image) == 0 {
		return fmt.Errorf("flash: empty image")
	}
	crc := imagecrc.Checksum(image)

	start := make([]byte, 5)
	start[0] = CmdStart
	binary.LittleEndian.PutUint32(start[1:], uint32(len(image)))
	if err := c.command(start...); err != nil {
		return err
	}
	if _, err := c.expectOK(ctx, "start"); err != nil {
		return err
	}

	for off := 0; off < len(image); off += 7 {
		end := off + 7
		if end > len(image) {
			end = len(image)
		}
		chunk := append([]byte{CmdData}, image[off:end]...)
		if err := c.command(chunk...); err != nil {
			return err
		}
		if _, err := c.expectOK(ctx, fmt.Sprintf("data at %d", off)); err != nil {
			return err
		}
		if progress != nil {
			progress(end, len(image))
		}
	}

	fin := make([]byte, 5)
	fin[0] = CmdEnd
	binary.LittleEndian.PutUint32(fin[1:], crc)
	if err := c.command(fin...); err != nil {
		return err
	}
	if _, err := c.expectOK(ctx, "end"); err != nil {
		return err
	}
	return nil
}

// BootApp asks the device to leave the bootloader and run the image.
func (c *Client) BootApp(ctx context.Context) error {
	if err := c.command(CmdBootApp); err != nil {
		return err
	}
	_, err := c.expectOK(ctx, "boot app")
	return err
}

// BootStatus reads the sticky diagnostic from the last boot attempt.
func (c *Client) BootStatus(ctx context.Context) (BootError, error) {
	if err := c.command(CmdBootStatus); err != nil {
		return 0, err
	}
	extra, err := c.expectOK(ctx, "boot status")
	if err != nil {
		return 0, err
	}
	return BootError(extra), nil
}

// ScanI2C runs the bridge scan and returns the responding 7-bit
// addresses in ascending order.
func (c *Client) ScanI2C(ctx context.Context, first, last uint8) ([]uint8, error) {
	if err := c.command(CmdI2CScan, first, last); err != nil {
		return nil, err
	}
	var bitmap [16]byte
	// The scan bitmap arrives in four-byte chunks.
	for got := 0; got < len(bitmap); {
		f, err := c.recv(ctx)
		if err != nil {
			return nil, err
		}
		if Status(f.Data[0]) != StatusOK {
			return nil, fmt.Errorf("scan: device answered %s (extra 0x%02X)",
				Status(f.Data[0]), f.Data[1])
		}
		if f.Data[1] != FrameI2CScan {
			return nil, fmt.Errorf("scan: unexpected frame % X", f.Data)
		}
		off := int(f.Data[2])
		n := copy(bitmap[off:], f.Data[4:8])
		got += n
	}
	var addrs []uint8
	for addr := 0; addr < 128; addr++ {
		if bitmap[addr>>3]&(1<<(addr&7)) != 0 {
			addrs = append(addrs, uint8(addr))
		}
	}
	return addrs, nil
}
