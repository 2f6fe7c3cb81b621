package timesource

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// DS3231Addr is the fixed I²C address of the DS3231.
const DS3231Addr uint16 = 0x68

const (
	regSeconds = 0x00
	regStatus  = 0x0F

	statusOSF = 0x80 // oscillator stop flag
	hour12    = 0x40
	century   = 0x80
)

// DS3231 is a battery-backed RTC on the I²C bus. Time is stored in UTC.
type DS3231 struct {
	dev *i2c.Dev
}

// NewDS3231 creates a DS3231 on bus.
func NewDS3231(bus i2c.Bus) *DS3231 {
	return &DS3231{dev: &i2c.Dev{Addr: DS3231Addr, Bus: bus}}
}

// ReadTime implements RTC.
func (d *DS3231) ReadTime() (time.Time, error) {
	status := make([]byte, 1)
	if err := d.dev.Tx([]byte{regStatus}, status); err != nil {
		return time.Time{}, fmt.Errorf("ds3231: read status: %w", err)
	}
	if status[0]&statusOSF != 0 {
		return time.Time{}, ErrLostPower
	}

	r := make([]byte, 7)
	if err := d.dev.Tx([]byte{regSeconds}, r); err != nil {
		return time.Time{}, fmt.Errorf("ds3231: read time: %w", err)
	}

	sec := fromBCD(r[0] & 0x7F)
	min := fromBCD(r[1] & 0x7F)
	var hour int
	if r[2]&hour12 != 0 {
		hour = fromBCD(r[2]&0x1F) % 12
		if r[2]&0x20 != 0 {
			hour += 12
		}
	} else {
		hour = fromBCD(r[2] & 0x3F)
	}
	day := fromBCD(r[4] & 0x3F)
	month := fromBCD(r[5] & 0x1F)
	year := 2000 + fromBCD(r[6])
	if r[5]&century != 0 {
		year += 100
	}

	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), nil
}

// SetTime implements RTC. It writes the time registers and clears the
// oscillator stop flag.
func (d *DS3231) SetTime(t time.Time) error {
	t = t.UTC()
	w := []byte{
		regSeconds,
		toBCD(t.Second()),
		toBCD(t.Minute()),
		toBCD(t.Hour()), // 24h mode
		byte(t.Weekday()) + 1,
		toBCD(t.Day()),
		toBCD(int(t.Month())),
		toBCD(t.Year() % 100),
	}
	if t.Year() >= 2100 {
		w[6] |= century
	}
	if err := d.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("ds3231: write time: %w", err)
	}

	status := make([]byte, 1)
	if err := d.dev.Tx([]byte{regStatus}, status); err != nil {
		return fmt.Errorf("ds3231: read status: %w", err)
	}
	if err := d.dev.Tx([]byte{regStatus, status[0] &^ statusOSF}, nil); err != nil {
		return fmt.Errorf("ds3231: clear osf: %w", err)
	}
	return nil
}

func toBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}

func fromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}
