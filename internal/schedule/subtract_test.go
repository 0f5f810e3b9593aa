package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workBlock(start, end time.Time) Block {
	return Block{Start: start, End: end, Mode: ModeBoth, DurationMinutes: 30, Capacity: 1}
}

func TestSubtractLeavesOverlapBoundaries(t *testing.T) {
	// Leave [10:00, 12:00) on Monday.
	leave := Leave{
		Start:  at(2025, time.June, 2, 10, 0),
		End:    at(2025, time.June, 2, 12, 0),
		Status: LeaveActive,
	}

	tests := []struct {
		name       string
		block      Block
		wantRemove bool
	}{
		{"entirely inside", workBlock(at(2025, time.June, 2, 10, 30), at(2025, time.June, 2, 11, 0)), true},
		{"straddles start", workBlock(at(2025, time.June, 2, 9, 0), at(2025, time.June, 2, 10, 30)), true},
		{"straddles end", workBlock(at(2025, time.June, 2, 11, 30), at(2025, time.June, 2, 13, 0)), true},
		{"covers leave", workBlock(at(2025, time.June, 2, 9, 0), at(2025, time.June, 2, 13, 0)), true},
		{"ends at leave start", workBlock(at(2025, time.June, 2, 9, 0), at(2025, time.June, 2, 10, 0)), false},
		{"starts at leave end", workBlock(at(2025, time.June, 2, 12, 0), at(2025, time.June, 2, 13, 0)), false},
		{"different day", workBlock(at(2025, time.June, 3, 10, 0), at(2025, time.June, 3, 12, 0)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SubtractLeaves([]Block{tt.block}, []Leave{leave})
			if tt.wantRemove {
				assert.Empty(t, out)
			} else {
				assert.Len(t, out, 1)
			}
		})
	}
}

func TestSubtractLeavesIgnoresCancelled(t *testing.T) {
	leave := Leave{
		Start:  at(2025, time.June, 2, 0, 0),
		End:    at(2025, time.June, 9, 0, 0),
		Status: LeaveCancelled,
	}
	blocks := []Block{workBlock(at(2025, time.June, 2, 9, 0), at(2025, time.June, 2, 13, 0))}

	out := SubtractLeaves(blocks, []Leave{leave})
	assert.Len(t, out, 1, "cancelled leave restores availability")
}

func TestSubtractHolidays(t *testing.T) {
	locA := uuid.New()
	locB := uuid.New()

	blockAt := func(loc *uuid.UUID) Block {
		b := workBlock(at(2025, time.June, 2, 9, 0), at(2025, time.June, 2, 13, 0))
		b.LocationID = loc
		return b
	}

	t.Run("global holiday removes every block on the date", func(t *testing.T) {
		holidays := []Holiday{{Date: day(2025, time.June, 2), BlockBookings: true}}
		out := SubtractHolidays([]Block{blockAt(&locA), blockAt(&locB), blockAt(nil)}, holidays)
		assert.Empty(t, out)
	})

	t.Run("location-scoped holiday removes only matching location", func(t *testing.T) {
		holidays := []Holiday{{Date: day(2025, time.June, 2), BlockBookings: true, LocationID: &locA}}
		out := SubtractHolidays([]Block{blockAt(&locA), blockAt(&locB)}, holidays)
		require.Len(t, out, 1)
		assert.Equal(t, locB, *out[0].LocationID)
	})

	t.Run("non-blocking holiday is transparent", func(t *testing.T) {
		holidays := []Holiday{{Date: day(2025, time.June, 2), BlockBookings: false}}
		out := SubtractHolidays([]Block{blockAt(&locA)}, holidays)
		assert.Len(t, out, 1)
	})

	t.Run("other dates unaffected", func(t *testing.T) {
		holidays := []Holiday{{Date: day(2025, time.June, 3), BlockBookings: true}}
		out := SubtractHolidays([]Block{blockAt(&locA)}, holidays)
		assert.Len(t, out, 1)
	})
}

// Holiday dates are stored as UTC-midnight instants; blocks for a
// western-hemisphere doctor start on the same calendar day but on a
// different UTC day. The holiday must still empty the local day and
// leave the neighbors alone.
func TestSubtractHolidaysNegativeOffsetTimezone(t *testing.T) {
	nyc := newYork(t)
	holidays := []Holiday{{Date: day(2025, time.June, 2), BlockBookings: true}}

	blockOn := func(d int) Block {
		return workBlock(
			time.Date(2025, time.June, d, 9, 0, 0, 0, nyc),
			time.Date(2025, time.June, d, 13, 0, 0, 0, nyc),
		)
	}

	out := SubtractHolidays([]Block{blockOn(2)}, holidays)
	assert.Empty(t, out, "holiday removes the local day's blocks")

	out = SubtractHolidays([]Block{blockOn(1), blockOn(3)}, holidays)
	assert.Len(t, out, 2, "adjacent local days survive")
}
