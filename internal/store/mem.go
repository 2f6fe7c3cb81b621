package store

import (
	"fmt"
	"io"
	"sync"
)

// Write is one recorded WriteAt call on a MemDevice.
type Write struct {
	Off  int64
	Data []byte
}

// MemDevice is an in-memory Device for tests and volatile-only operation.
// Fresh memory is filled with 0xFF, like an erased EEPROM.
type MemDevice struct {
	mu   sync.Mutex
	data []byte

	// Writes records every successful write in order.
	Writes []Write

	// ReadError, if set, will be returned by ReadAt.
	ReadError error
	// WriteError, if set, will be returned by WriteAt at FailAtOffset
	// (or every offset when FailAtOffset is negative).
	WriteError   error
	FailAtOffset int64
}

// NewMemDevice creates an erased device of size bytes.
func NewMemDevice(size int) *MemDevice {
	d := &MemDevice{data: make([]byte, size), FailAtOffset: -1}
	for i := range d.data {
		d.data[i] = 0xFF
	}
	return d
}

// ReadAt implements io.ReaderAt.
func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ReadError != nil {
		return 0, d.ReadError
	}
	if off < 0 || off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.WriteError != nil && (d.FailAtOffset < 0 || d.FailAtOffset == off) {
		return 0, d.WriteError
	}
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, fmt.Errorf("mem: write of %d bytes at %d out of range", len(p), off)
	}
	copy(d.data[off:], p)
	d.Writes = append(d.Writes, Write{Off: off, Data: append([]byte(nil), p...)})
	return len(p), nil
}

// Bytes returns a copy of the device contents.
func (d *MemDevice) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.data...)
}

// Poke overwrites raw bytes without recording a write.
func (d *MemDevice) Poke(off int64, p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[off:], p)
}

// WriteOffsets returns the offsets of recorded writes, in order.
func (d *MemDevice) WriteOffsets() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	offs := make([]int64, len(d.Writes))
	for i, w := range d.Writes {
		offs[i] = w.Off
	}
	return offs
}

// ResetWrites clears the write log.
func (d *MemDevice) ResetWrites() {
	d.mu.Lock()
	d.Writes = nil
	d.mu.Unlock()
}
