package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// I2CBridge exposes a raw periph I2C bus for the bootloader's diagnostic
// pass-through commands.
type I2CBridge struct {
	bus i2c.Bus
}

func NewI2CBridge(bus i2c.Bus) *I2CBridge { return &I2CBridge{bus: bus} }

// Transfer performs a write-then-read against the 7-bit address.
func (b *I2CBridge) Transfer(addr7 uint8, tx, rx []byte) error {
	if err := b.bus.Tx(uint16(addr7), tx, rx); err != nil {
		return fmt.Errorf("i2c bridge: addr 0x%02X: %w", addr7, err)
	}
	return nil
}

// Probe reports whether anything acknowledges the address. A zero-length
// write is the same probe i2cdetect uses.
func (b *I2CBridge) Probe(addr7 uint8) bool {
	return b.bus.Tx(uint16(addr7), nil, nil) == nil
}
