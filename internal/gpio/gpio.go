// Package gpio delivers falling edges from the rain gauge input line.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// EdgeHandler is called once per raw falling edge with a monotonic timestamp
// in milliseconds. It runs on the edge source's own goroutine and must not block.
type EdgeHandler func(nowMs int64)

// EdgeSource watches an input line for falling edges.
type EdgeSource interface {
	// Start begins delivering edges to h. It may only be called once.
	Start(h EdgeHandler) error

	// Close releases GPIO resources. No edges are delivered after it returns.
	Close() error
}

// Defaults (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 5 // rain gauge reed switch, other leg to GND
)
