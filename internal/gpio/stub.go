//go:build !linux

package gpio

import "errors"

// RealEdgeSource is not available on non-Linux platforms.
type RealEdgeSource struct{}

// NewRealEdgeSource returns a source whose Start always fails.
func NewRealEdgeSource(chip string, pin int) *RealEdgeSource {
	return &RealEdgeSource{}
}

// Start is not implemented on non-Linux platforms.
func (r *RealEdgeSource) Start(h EdgeHandler) error {
	return errors.New("gpio: not supported on this platform (requires Linux)")
}

// Close is not implemented on non-Linux platforms.
func (r *RealEdgeSource) Close() error {
	return nil
}
