// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package canbus

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// SLCAN speaks the Lawicel serial-line CAN protocol to a USB-CAN dongle.
// Frames are read on a background goroutine into a bounded queue so that
// TryRecv stays non-blocking like the other Bus implementations.
type SLCAN struct {
	port io.ReadWriteCloser

	mu     sync.Mutex // serializes writes to the port
	frames chan Frame

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	readErr   error
	readErrMu sync.Mutex
}

// slcan bitrate code for the firmware's 500 kbit/s bus.
const slcanBitrate500k = "S6"

// OpenSLCAN opens the serial device, configures the channel for
// 500 kbit/s and opens it. The dongle speaks 8N1 at its own USB-side
// baud rate; 115200 suits the common CANable/USBtin firmware.
func OpenSLCAN(portName string) (*SLCAN, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        115200,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, fmt.Errorf("slcan: open %s: %w", portName, err)
	}
	return newSLCAN(port)
}

// newSLCAN wraps an already-open stream. Split out for tests.
func newSLCAN(port io.ReadWriteCloser) (*SLCAN, error) {
	s := &SLCAN{
		port:   port,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	// Close any stale channel, set the bitrate, open.
	for _, cmd := range []string{"C", slcanBitrate500k, "O"} {
		if _, err := port.Write([]byte(cmd + "\r")); err != nil {
			port.Close()
			return nil, fmt.Errorf("slcan: init %q: %w", cmd, err)
		}
	}
	go s.readLoop()
	return s, nil
}

func (s *SLCAN) readLoop() {
	scanner := bufio.NewScanner(s.port)
	scanner.Split(scanCR)
	for scanner.Scan() {
		f, err := decodeSLCAN(scanner.Text())
		if err != nil {
			// Skip acks, error indications and unsupported frame kinds.
			continue
		}
		select {
		case s.frames <- f:
		case <-s.done:
			return
		default:
			// Receiver not draining; drop the oldest to keep up.
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- f:
			default:
			}
		}
	}
	s.readErrMu.Lock()
	if err := scanner.Err(); err != nil {
		s.readErr = err
	} else {
		s.readErr = io.EOF
	}
	s.readErrMu.Unlock()
}

func (s *SLCAN) Send(f Frame) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	line, err := encodeSLCAN(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte(line)); err != nil {
		return fmt.Errorf("slcan: send: %w", err)
	}
	return nil
}

func (s *SLCAN) TryRecv() (Frame, bool, error) {
	select {
	case f := <-s.frames:
		return f, true, nil
	default:
	}
	select {
	case <-s.done:
		return Frame{}, false, ErrClosed
	default:
	}
	s.readErrMu.Lock()
	err := s.readErr
	s.readErrMu.Unlock()
	if err != nil {
		return Frame{}, false, fmt.Errorf("slcan: recv: %w", err)
	}
	return Frame{}, false, nil
}

// Close closes the channel on the dongle and releases the port.
func (s *SLCAN) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.port.Write([]byte("C\r"))
		s.closeErr = s.port.Close()
		s.mu.Unlock()
	})
	return s.closeErr
}

const hexDigits = "0123456789ABCDEF"

// encodeSLCAN renders a standard data frame as tIIILDD..DD\r.
func encodeSLCAN(f Frame) (string, error) {
	if f.ID > 0x7FF {
		return "", fmt.Errorf("slcan: ID 0x%X exceeds standard range", f.ID)
	}
	if f.Len > 8 {
		return "", fmt.Errorf("slcan: DLC %d exceeds 8", f.Len)
	}
	var b strings.Builder
	b.Grow(6 + 2*int(f.Len))
	b.WriteByte('t')
	b.WriteByte(hexDigits[f.ID>>8&0xF])
	b.WriteByte(hexDigits[f.ID>>4&0xF])
	b.WriteByte(hexDigits[f.ID&0xF])
	b.WriteByte(hexDigits[f.Len])
	for _, d := range f.Data[:f.Len] {
		b.WriteByte(hexDigits[d>>4])
		b.WriteByte(hexDigits[d&0xF])
	}
	b.WriteByte('\r')
	return b.String(), nil
}

// decodeSLCAN parses a standard data frame line (without the trailing CR).
// Extended and remote frames, acks and error flags all return an error and
// are skipped by the read loop.
func decodeSLCAN(line string) (Frame, error) {
	if len(line) < 5 || line[0] != 't' {
		return Frame{}, fmt.Errorf("slcan: not a standard data frame: %q", line)
	}
	id, err := parseHex(line[1:4])
	if err != nil {
		return Frame{}, err
	}
	dlc, err := parseHex(line[4:5])
	if err != nil {
		return Frame{}, err
	}
	if dlc > 8 || len(line) < 5+2*int(dlc) {
		return Frame{}, fmt.Errorf("slcan: bad DLC in %q", line)
	}
	f := Frame{ID: uint16(id), Len: uint8(dlc)}
	for i := 0; i < int(dlc); i++ {
		v, err := parseHex(line[5+2*i : 7+2*i])
		if err != nil {
			return Frame{}, err
		}
		f.Data[i] = uint8(v)
	}
	return f, nil
}

func parseHex(s string) (uint32, error) {
	var v uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			v = v<<4 | uint32(c-'0')
		case c >= 'A' && c <= 'F':
			v = v<<4 | uint32(c-'A'+10)
		case c >= 'a' && c <= 'f':
			v = v<<4 | uint32(c-'a'+10)
		default:
			return 0, fmt.Errorf("slcan: bad hex %q", s)
		}
	}
	return v, nil
}

// scanCR splits on carriage returns, the slcan line terminator. The BELL
// byte some dongles send as an error ack becomes an empty token and is
// rejected by decodeSLCAN.
func scanCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' || b == '\a' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
