package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed writes a valid record directly into dev without touching the write log.
func seed(dev *MemDevice, total float32, day int32) {
	dev.Poke(OffsetTotal, encodeFloat32(total))
	dev.Poke(OffsetDay, encodeInt32(day))
	dev.Poke(OffsetMagic, encodeUint32(Magic))
}

func TestLoadColdStartErasedDevice(t *testing.T) {
	dev := NewMemDevice(64)
	s := New(dev)

	rec, err := s.Load(11)
	require.NoError(t, err)

	assert.Equal(t, Recovered{Today: 0, Yesterday: 0, LastDay: 11, ColdStart: true, Rewritten: true}, rec)

	stored, err := s.Inspect()
	require.NoError(t, err)
	assert.Equal(t, Record{Total: 0, Day: 11, Magic: Magic}, stored)
}

func TestLoadColdStartWritesPayloadBeforeMagic(t *testing.T) {
	dev := NewMemDevice(64)
	dev.Poke(0, []byte{0xDE, 0xAD, 0xBE, 0xEF, 1, 2, 3, 4, 5, 6, 7, 8}) // foreign content
	s := New(dev)

	_, err := s.Load(3)
	require.NoError(t, err)

	assert.Equal(t, []int64{OffsetTotal, OffsetDay, OffsetMagic}, dev.WriteOffsets())
}

func TestLoadColdStartInterruptedBeforeMagicStaysUninitialized(t *testing.T) {
	dev := NewMemDevice(64)
	dev.WriteError = errors.New("power cut")
	dev.FailAtOffset = OffsetMagic
	s := New(dev)

	rec, err := s.Load(3)
	require.Error(t, err)
	assert.True(t, rec.ColdStart)
	assert.Equal(t, float32(0), rec.Today)

	_, err = s.Inspect()
	assert.ErrorIs(t, err, ErrNotInitialized)

	// Next boot retries initialization.
	dev.WriteError = nil
	rec, err = s.Load(3)
	require.NoError(t, err)
	assert.True(t, rec.ColdStart)
}

func TestLoadReadFailureTreatedAsUninitialized(t *testing.T) {
	dev := NewMemDevice(64)
	seed(dev, 5.5, 11)
	dev.ReadError = errors.New("bus error")
	s := New(dev)

	rec, err := s.Load(11)
	require.NoError(t, err, "writes still succeed")
	assert.True(t, rec.ColdStart)
	assert.Equal(t, float32(0), rec.Today)
	assert.Equal(t, []int64{OffsetTotal, OffsetDay, OffsetMagic}, dev.WriteOffsets())
}

func TestLoadStaleDayBecomesYesterday(t *testing.T) {
	dev := NewMemDevice(64)
	seed(dev, 7.0, 10)
	s := New(dev)

	rec, err := s.Load(11)
	require.NoError(t, err)

	assert.Equal(t, float32(7.0), rec.Yesterday)
	assert.Equal(t, float32(0), rec.Today)
	assert.Equal(t, 11, rec.LastDay)
	assert.False(t, rec.ColdStart)
	assert.True(t, rec.Rewritten)

	stored, err := s.Inspect()
	require.NoError(t, err)
	assert.Equal(t, Record{Total: 0, Day: 11, Magic: Magic}, stored)
	assert.Equal(t, []int64{OffsetTotal, OffsetDay}, dev.WriteOffsets(), "magic is not rewritten")

	// A second boot the same day resumes cleanly.
	dev.ResetWrites()
	rec, err = s.Load(11)
	require.NoError(t, err)
	assert.Equal(t, float32(0), rec.Today)
	assert.Equal(t, float32(0), rec.Yesterday)
	assert.Empty(t, dev.Writes)
}

func TestLoadSameDayResumes(t *testing.T) {
	dev := NewMemDevice(64)
	seed(dev, 2.2, 11)
	s := New(dev)

	rec, err := s.Load(11)
	require.NoError(t, err)

	assert.Equal(t, float32(2.2), rec.Today)
	assert.Equal(t, float32(0), rec.Yesterday)
	assert.Equal(t, 11, rec.LastDay)
	assert.False(t, rec.Rewritten)
	assert.Empty(t, dev.Writes, "no rewrite on same-day resume")
}

func TestLoadStaleDayRewriteFailure(t *testing.T) {
	dev := NewMemDevice(64)
	seed(dev, 7.0, 10)
	dev.WriteError = errors.New("bus error")
	s := New(dev)

	rec, err := s.Load(11)
	require.Error(t, err)
	assert.Equal(t, float32(7.0), rec.Yesterday, "state is still usable")
	assert.Equal(t, 11, rec.LastDay)
}

func TestLoadDiscardsInvalidTotal(t *testing.T) {
	dev := NewMemDevice(64)
	seed(dev, -3, 11)
	s := New(dev)

	rec, err := s.Load(11)
	require.NoError(t, err)
	assert.Equal(t, float32(0), rec.Today)
}

func TestSaveWritesTotalThenDay(t *testing.T) {
	dev := NewMemDevice(64)
	s := New(dev)

	require.NoError(t, s.Save(1.25, 15))

	require.Len(t, dev.Writes, 2)
	assert.Equal(t, int64(OffsetTotal), dev.Writes[0].Off)
	assert.Equal(t, encodeFloat32(1.25), dev.Writes[0].Data)
	assert.Equal(t, int64(OffsetDay), dev.Writes[1].Off)
	assert.Equal(t, encodeInt32(15), dev.Writes[1].Data)
}

func TestSaveDoesNotTouchMagic(t *testing.T) {
	dev := NewMemDevice(64)
	s := New(dev)

	require.NoError(t, s.Save(1, 1))
	_, err := s.Inspect()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSaveError(t *testing.T) {
	dev := NewMemDevice(64)
	dev.WriteError = errors.New("bus error")
	s := New(dev)

	err := s.Save(1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write total")
}

func TestResetForcesColdStart(t *testing.T) {
	dev := NewMemDevice(64)
	seed(dev, 4.0, 11)
	s := New(dev)

	require.NoError(t, s.Reset())

	rec, err := s.Load(11)
	require.NoError(t, err)
	assert.True(t, rec.ColdStart)
	assert.Equal(t, float32(0), rec.Today)
}

func TestInspectShortDevice(t *testing.T) {
	s := New(NewMemDevice(4))
	_, err := s.Inspect()
	require.Error(t, err)
}

func TestLayoutEncoding(t *testing.T) {
	assert.Equal(t, []byte("RAIN"), encodeUint32(Magic))
	assert.Equal(t, float32(2.2), decodeFloat32(encodeFloat32(2.2)))
	assert.Equal(t, int32(-7), decodeInt32(encodeInt32(-7)))
}

func TestFileDeviceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "nvram.bin")

	dev, err := OpenFile(path)
	require.NoError(t, err)
	s := New(dev)

	rec, err := s.Load(20)
	require.NoError(t, err)
	assert.True(t, rec.ColdStart, "empty file cold-starts")

	require.NoError(t, s.Save(3.5, 20))
	require.NoError(t, dev.Close())

	dev, err = OpenFile(path)
	require.NoError(t, err)
	defer dev.Close()

	rec, err = New(dev).Load(20)
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), rec.Today)
	assert.False(t, rec.ColdStart)
}
