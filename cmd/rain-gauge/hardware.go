package main

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sweeney/rain-gauge/internal/config"
	"github.com/sweeney/rain-gauge/internal/store"
	"github.com/sweeney/rain-gauge/internal/timesource"
)

// buses opens each I²C bus once; the DS3231 and its companion EEPROM
// usually share one.
type buses struct {
	initialized bool
	open        map[string]i2c.BusCloser
}

func newBuses() *buses {
	return &buses{open: map[string]i2c.BusCloser{}}
}

func (b *buses) get(name string) (i2c.Bus, error) {
	if bus, ok := b.open[name]; ok {
		return bus, nil
	}
	if !b.initialized {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("init periph host: %w", err)
		}
		b.initialized = true
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	b.open[name] = bus
	return bus, nil
}

func (b *buses) Close() error {
	var errs []error
	for _, bus := range b.open {
		errs = append(errs, bus.Close())
	}
	b.open = map[string]i2c.BusCloser{}
	return errors.Join(errs...)
}

// openDevice opens the storage device named by cfg. The returned close
// function is never nil.
func openDevice(cfg config.StorageConfig, b *buses) (store.Device, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case config.StorageFile:
		f, err := store.OpenFile(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return f, f.Close, nil
	case config.StorageEEPROM:
		bus, err := b.get(cfg.I2CBus)
		if err != nil {
			return nil, noop, err
		}
		return store.NewEEPROM(bus, cfg.Addr, store.EEPROMSize), noop, nil
	case config.StorageMemory:
		return store.NewMemDevice(store.RecordSize), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

// openStorage opens the configured device, falling back to an in-memory one
// when it cannot be opened. volatile reports whether checkpoints will be
// lost on restart.
func openStorage(cfg config.StorageConfig, b *buses) (dev store.Device, closeDev func() error, volatile bool) {
	dev, closeDev, err := openDevice(cfg, b)
	if err != nil {
		logger.Errorf("storage unavailable, running volatile-only [%v]", err)
		return store.NewMemDevice(store.RecordSize), func() error { return nil }, true
	}
	if cfg.Kind == config.StorageMemory {
		logger.Warn("memory storage selected, totals will not survive a restart")
		return dev, closeDev, true
	}
	return dev, closeDev, false
}

// openClock opens the configured RTC, falling back to the system clock when
// it cannot be opened. Time is then unreliable but rain is still counted.
func openClock(cfg config.TimeConfig, b *buses, clk clockwork.Clock) timesource.RTC {
	rtc, err := openRTC(cfg, b, clk)
	if err != nil {
		logger.Errorf("rtc unavailable, using system clock [%v]", err)
		return timesource.NewSystemRTC(clk)
	}
	return rtc
}

// openRTC opens the real-time clock named by cfg.
func openRTC(cfg config.TimeConfig, b *buses, clk clockwork.Clock) (timesource.RTC, error) {
	switch cfg.RTC {
	case config.RTCSystem:
		return timesource.NewSystemRTC(clk), nil
	case config.RTCDS3231:
		bus, err := b.get(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		return timesource.NewDS3231(bus), nil
	default:
		return nil, fmt.Errorf("unknown rtc %q", cfg.RTC)
	}
}
