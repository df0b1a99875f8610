package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.Local)
}

func TestExpandSlots(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		duration time.Duration
		want     int
	}{
		{"four hour session", day(9, 0), day(13, 0), 15 * time.Minute, 16},
		{"single slot", day(9, 0), day(9, 15), 15 * time.Minute, 1},
		{"uneven boundary includes last slot", day(9, 0), day(9, 40), 15 * time.Minute, 3},
		{"twenty minute slots", day(14, 0), day(17, 0), 20 * time.Minute, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := ExpandSlots(tt.start, tt.end, tt.duration)
			require.NoError(t, err)
			assert.Len(t, slots, tt.want)
			assert.Equal(t, tt.start, slots[0])
			assert.Equal(t, tt.want, SlotCount(tt.start, tt.end, tt.duration))

			for i := 1; i < len(slots); i++ {
				assert.Equal(t, tt.duration, slots[i].Sub(slots[i-1]))
			}
			assert.True(t, slots[len(slots)-1].Before(tt.end))
		})
	}
}

func TestExpandSlotsInvalidRange(t *testing.T) {
	_, err := ExpandSlots(day(13, 0), day(9, 0), 15*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ExpandSlots(day(9, 0), day(9, 0), 15*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ExpandSlots(day(9, 0), day(13, 0), 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSlotIndexAt(t *testing.T) {
	start := day(9, 0)
	d := 15 * time.Minute

	assert.Equal(t, 0, SlotIndexAt(start, d, day(9, 0)))
	assert.Equal(t, 0, SlotIndexAt(start, d, day(9, 14)))
	assert.Equal(t, 4, SlotIndexAt(start, d, day(10, 0)))
	assert.Equal(t, -1, SlotIndexAt(start, d, day(8, 59)))
}
