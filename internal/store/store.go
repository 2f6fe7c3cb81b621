package store

import (
	"errors"
	"fmt"
	"math"

	logger "github.com/sirupsen/logrus"
)

// ErrNotInitialized is reported by Inspect when the magic does not match.
var ErrNotInitialized = errors.New("store: storage not initialized")

// Record is the persisted checkpoint.
type Record struct {
	Total float32
	Day   int32
	Magic uint32
}

// Valid reports whether the record carries this firmware's magic.
func (r Record) Valid() bool {
	return r.Magic == Magic
}

// Recovered is the state handed to the accumulator at boot.
type Recovered struct {
	Today     float32
	Yesterday float32
	LastDay   int

	// ColdStart is true when the storage was (re)initialized.
	ColdStart bool
	// Rewritten is true when Load wrote to storage.
	Rewritten bool
}

// Store owns the record layout on a Device.
// It is not safe for concurrent use; the run loop is its only caller.
type Store struct {
	dev Device
}

// New creates a Store on dev.
func New(dev Device) *Store {
	return &Store{dev: dev}
}

// Load recovers the checkpoint for today (day-of-month from the time source).
//
// A read failure or a magic mismatch is treated as uninitialized storage: the
// zero payload is written first and the magic last, so an interrupted
// initialization still looks uninitialized on the next boot. A stored day
// that differs from today becomes yesterday's total and the corrected state
// is written back immediately.
//
// The returned Recovered is always usable. A non-nil error means storage
// could not be written and the caller should run volatile-only.
func (s *Store) Load(today int) (Recovered, error) {
	rec, err := s.read()
	if err != nil {
		logger.Warnf("store: read failed, re-initializing [%v]", err)
	}
	if err != nil || !rec.Valid() {
		return s.initialize(today)
	}

	if int(rec.Day) == today {
		total := rec.Total
		if !validTotal(total) {
			logger.Warnf("store: discarding invalid total [%v] for day %d", total, today)
			total = 0
		}
		return Recovered{Today: total, LastDay: today}, nil
	}

	yesterday := rec.Total
	if !validTotal(yesterday) {
		yesterday = 0
	}
	out := Recovered{Yesterday: yesterday, LastDay: today, Rewritten: true}
	if err := s.Save(0, today); err != nil {
		return out, fmt.Errorf("rewrite stale day %d -> %d: %w", rec.Day, today, err)
	}
	return out, nil
}

func (s *Store) initialize(today int) (Recovered, error) {
	out := Recovered{LastDay: today, ColdStart: true, Rewritten: true}
	if err := s.Save(0, today); err != nil {
		return out, fmt.Errorf("initialize storage: %w", err)
	}
	if err := s.write(OffsetMagic, encodeUint32(Magic)); err != nil {
		return out, fmt.Errorf("write magic: %w", err)
	}
	return out, nil
}

// Save writes total and then day. It never touches the magic.
func (s *Store) Save(total float32, day int) error {
	if err := s.write(OffsetTotal, encodeFloat32(total)); err != nil {
		return fmt.Errorf("write total: %w", err)
	}
	if err := s.write(OffsetDay, encodeInt32(int32(day))); err != nil {
		return fmt.Errorf("write day: %w", err)
	}
	return nil
}

// Inspect reads the raw record without modifying storage.
// It returns ErrNotInitialized alongside the record if the magic is wrong.
func (s *Store) Inspect() (Record, error) {
	rec, err := s.read()
	if err != nil {
		return rec, err
	}
	if !rec.Valid() {
		return rec, ErrNotInitialized
	}
	return rec, nil
}

// Reset invalidates the magic so the next Load performs a cold start.
func (s *Store) Reset() error {
	if err := s.write(OffsetMagic, encodeUint32(0)); err != nil {
		return fmt.Errorf("clear magic: %w", err)
	}
	return nil
}

func (s *Store) read() (Record, error) {
	buf := make([]byte, RecordSize)
	n, err := s.dev.ReadAt(buf, 0)
	if n < RecordSize {
		if err == nil {
			err = fmt.Errorf("short read: %d bytes", n)
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	return Record{
		Total: decodeFloat32(buf[OffsetTotal:]),
		Day:   decodeInt32(buf[OffsetDay:]),
		Magic: decodeUint32(buf[OffsetMagic:]),
	}, nil
}

func (s *Store) write(off int64, b []byte) error {
	if _, err := s.dev.WriteAt(b, off); err != nil {
		return err
	}
	if sy, ok := s.dev.(syncer); ok {
		return sy.Sync()
	}
	return nil
}

func validTotal(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
