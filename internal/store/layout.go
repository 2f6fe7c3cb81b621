// Package store checkpoints the day total to byte-addressable non-volatile
// storage and recovers it after a restart.
//
// Layout (little-endian, fixed offsets, no version field):
//
//	0x00  float32  today total (mm)
//	0x04  int32    day-of-month the total belongs to
//	0x08  uint32   magic
//
// Changing the layout requires a new Magic so old records are treated as
// uninitialized.
package store

import (
	"encoding/binary"
	"math"
)

const (
	OffsetTotal = 0x00
	OffsetDay   = 0x04
	OffsetMagic = 0x08

	// RecordSize is the number of bytes the record occupies.
	RecordSize = 12

	// Magic is "RAIN" read as a little-endian uint32.
	Magic uint32 = 0x4E494152
)

func encodeFloat32(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func decodeInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func decodeUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
