package store

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// AT24C32 defaults. The chip sits next to the DS3231 on the common RTC modules.
const (
	EEPROMAddr     uint16 = 0x57
	EEPROMSize            = 4096
	eepromPageSize        = 32
	eepromWriteTime       = 5 * time.Millisecond
)

// EEPROM is a 24Cxx-series I²C EEPROM with two-byte addressing.
type EEPROM struct {
	dev  *i2c.Dev
	size int64
}

// NewEEPROM creates an EEPROM device on bus at addr.
func NewEEPROM(bus i2c.Bus, addr uint16, size int) *EEPROM {
	if addr == 0 {
		addr = EEPROMAddr
	}
	if size <= 0 {
		size = EEPROMSize
	}
	return &EEPROM{dev: &i2c.Dev{Addr: addr, Bus: bus}, size: int64(size)}
}

// ReadAt implements io.ReaderAt with a sequential read.
func (e *EEPROM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > e.size {
		return 0, fmt.Errorf("eeprom: read of %d bytes at %d out of range", len(p), off)
	}
	if err := e.dev.Tx([]byte{byte(off >> 8), byte(off)}, p); err != nil {
		return 0, fmt.Errorf("eeprom: read at %#x: %w", off, err)
	}
	return len(p), nil
}

// WriteAt implements io.WriterAt, splitting writes at page boundaries and
// waiting out the internal write cycle after each page.
func (e *EEPROM) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > e.size {
		return 0, fmt.Errorf("eeprom: write of %d bytes at %d out of range", len(p), off)
	}
	written := 0
	for written < len(p) {
		addr := off + int64(written)
		chunk := eepromPageSize - int(addr%eepromPageSize)
		if rem := len(p) - written; chunk > rem {
			chunk = rem
		}
		buf := make([]byte, 0, 2+chunk)
		buf = append(buf, byte(addr>>8), byte(addr))
		buf = append(buf, p[written:written+chunk]...)
		if err := e.dev.Tx(buf, nil); err != nil {
			return written, fmt.Errorf("eeprom: write at %#x: %w", addr, err)
		}
		time.Sleep(eepromWriteTime)
		written += chunk
	}
	return written, nil
}
