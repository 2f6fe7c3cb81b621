//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealEdgeSource watches a GPIO line using the Linux GPIO character device.
type RealEdgeSource struct {
	chip string
	pin  int

	mu   sync.Mutex
	line *gpiocdev.Line
}

// NewRealEdgeSource creates an edge source for the given chip and BCM pin.
// The line is not requested until Start.
func NewRealEdgeSource(chip string, pin int) *RealEdgeSource {
	if chip == "" {
		chip = DefaultChip
	}
	return &RealEdgeSource{chip: chip, pin: pin}
}

// Start requests the line as an input with pull-up and falling edge detection.
// The handler runs on gpiocdev's event goroutine, one event at a time.
func (r *RealEdgeSource) Start(h EdgeHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.line != nil {
		return errors.New("gpio: already started")
	}

	line, err := gpiocdev.RequestLine(r.chip, r.pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithConsumer("rain-gauge"),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			// Timestamp is CLOCK_MONOTONIC as captured by the kernel at the edge.
			h(evt.Timestamp.Milliseconds())
		}))
	if err != nil {
		return fmt.Errorf("request rain pin %s:%d: %w", r.chip, r.pin, err)
	}
	r.line = line
	return nil
}

// Close releases the line. The pin is reconfigured as a plain input first,
// matching Pi boot defaults.
func (r *RealEdgeSource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.line == nil {
		return nil
	}

	var errs []error
	if err := r.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure rain pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close rain pin: %w", err))
	}
	r.line = nil

	return errors.Join(errs...)
}
