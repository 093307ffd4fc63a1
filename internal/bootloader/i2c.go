package bootloader

// I2C bridge limits, sized to the CAN-side chunking.
const (
	I2CMaxTx = 48
	I2CMaxRx = 32

	// Default probe window, matching i2cdetect's usable address range.
	I2CScanFirst = 0x08
	I2CScanLast  = 0x77
)

// I2CBridge is the peripheral-bus pass-through the bootloader exposes for
// field diagnostics. Implementations sit on a real I2C master; tests use
// a scripted fake.
type I2CBridge interface {
	// Transfer writes tx (if non-empty) then reads len(rx) bytes (if
	// non-empty) from the 7-bit address, as one write-then-read pair.
	Transfer(addr7 uint8, tx, rx []byte) error
	// Probe reports whether a device acknowledges the address.
	Probe(addr7 uint8) bool
}
