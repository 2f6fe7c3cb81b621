package store

import "io"

// Device is byte-addressable non-volatile memory.
// *os.File satisfies it, as do the EEPROM and in-memory devices.
type Device interface {
	io.ReaderAt
	io.WriterAt
}

// syncer is implemented by devices that buffer writes (files).
type syncer interface {
	Sync() error
}
