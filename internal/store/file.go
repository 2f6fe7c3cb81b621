package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileDevice is a Device backed by a regular file, e.g. on a Pi without an
// EEPROM or through /sys/bus/nvmem. Writes are fsynced by Store.
type FileDevice struct {
	*os.File
}

// OpenFile opens (creating if needed) the backing file at path.
// A new file is empty, so the first Load sees a short read and cold-starts.
func OpenFile(path string) (*FileDevice, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open storage file: %w", err)
	}
	return &FileDevice{File: f}, nil
}
