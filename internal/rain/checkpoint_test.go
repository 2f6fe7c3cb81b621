package rain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointerDefaultInterval(t *testing.T) {
	c := NewCheckpointer(0, time.Time{})
	assert.Equal(t, DefaultCheckpointInterval, c.Interval())
}

func TestCheckpointerDue(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCheckpointer(5*time.Minute, start)

	assert.False(t, c.Due(start))
	assert.False(t, c.Due(start.Add(4*time.Minute+59*time.Second)))
	assert.True(t, c.Due(start.Add(5*time.Minute)))
	assert.False(t, c.Due(start.Add(5*time.Minute+time.Second)), "interval restarts after a checkpoint")
	assert.True(t, c.Due(start.Add(10*time.Minute)))
}

func TestCheckpointerMarkRestartsInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCheckpointer(5*time.Minute, start)

	c.Mark(start.Add(4 * time.Minute))
	assert.False(t, c.Due(start.Add(5*time.Minute)))
	assert.True(t, c.Due(start.Add(9*time.Minute)))
}

func TestCheckpointerNeverExceedsRate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	interval := 5 * time.Minute
	c := NewCheckpointer(interval, start)

	const T = 3*time.Hour + 7*time.Minute
	saves := 0
	for elapsed := time.Second; elapsed <= T; elapsed += time.Second {
		if c.Due(start.Add(elapsed)) {
			saves++
		}
	}
	assert.Equal(t, int(T/interval), saves)
}
