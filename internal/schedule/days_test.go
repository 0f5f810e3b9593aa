package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotOwner = uuid.New()

func slotAt(start time.Time, dur time.Duration) TimeSlot {
	return TimeSlot{
		ID:                SlotID(slotOwner, start, nil),
		Start:             start,
		End:               start.Add(dur),
		Mode:              ModeBoth,
		Capacity:          1,
		CapacityRemaining: 1,
	}
}

func TestGroupByDayIncludesEmptyDays(t *testing.T) {
	slots := []TimeSlot{
		slotAt(at(2025, time.June, 2, 9, 0), 20*time.Minute),
		slotAt(at(2025, time.June, 2, 9, 25), 20*time.Minute),
		slotAt(at(2025, time.June, 4, 14, 0), 20*time.Minute),
	}

	days := GroupByDay(slots, nil, monday, day(2025, time.June, 5))

	require.Len(t, days, 4)
	assert.Equal(t, DayAvailable, days[0].Status)
	assert.Len(t, days[0].Slots, 2)
	require.NotNil(t, days[0].NextAvailable)
	assert.Equal(t, at(2025, time.June, 2, 9, 0), *days[0].NextAvailable)

	assert.Equal(t, DayUnavailable, days[1].Status)
	assert.Empty(t, days[1].Slots)
	assert.Nil(t, days[1].NextAvailable)

	assert.Equal(t, DayAvailable, days[2].Status)
	assert.Equal(t, DayUnavailable, days[3].Status)
}

func TestGroupByDayLeaveWinsEvenWithSlots(t *testing.T) {
	// Afternoon leave; a surviving morning slot does not stop the day
	// from being classified as leave.
	leaves := []Leave{{
		Start:  at(2025, time.June, 2, 12, 0),
		End:    at(2025, time.June, 3, 0, 0),
		Reason: "conference",
		Status: LeaveActive,
	}}
	slots := []TimeSlot{slotAt(at(2025, time.June, 2, 9, 0), 20*time.Minute)}

	days := GroupByDay(slots, leaves, monday, monday)

	require.Len(t, days, 1)
	assert.Equal(t, DayLeave, days[0].Status)
	require.NotNil(t, days[0].Leave)
	assert.Equal(t, "conference", days[0].Leave.Reason)
	assert.Len(t, days[0].Slots, 1, "surviving slots are still listed")
}

func TestGroupByDayCancelledLeaveIgnored(t *testing.T) {
	leaves := []Leave{{
		Start:  at(2025, time.June, 2, 0, 0),
		End:    at(2025, time.June, 3, 0, 0),
		Status: LeaveCancelled,
	}}

	days := GroupByDay(nil, leaves, monday, monday)

	require.Len(t, days, 1)
	assert.Equal(t, DayUnavailable, days[0].Status)
}

func TestSummarize(t *testing.T) {
	now := at(2025, time.June, 2, 8, 0)

	makeDays := func(slotDay time.Time) []DayAvailability {
		slots := []TimeSlot{slotAt(slotDay.Add(9*time.Hour), 20*time.Minute)}
		return GroupByDay(slots, nil, monday, sunday)
	}

	t.Run("today", func(t *testing.T) {
		s := Summarize(makeDays(monday), nil, now)
		assert.Equal(t, SummaryToday, s.Status)
		require.NotNil(t, s.Slot)
		assert.Equal(t, at(2025, time.June, 2, 9, 0), s.Slot.Start)
	})

	t.Run("tomorrow", func(t *testing.T) {
		s := Summarize(makeDays(tuesday), nil, now)
		assert.Equal(t, SummaryTomorrow, s.Status)
	})

	t.Run("this week", func(t *testing.T) {
		s := Summarize(makeDays(day(2025, time.June, 5)), nil, now)
		assert.Equal(t, SummaryThisWeek, s.Status)
	})

	t.Run("this week boundary", func(t *testing.T) {
		// Six days out is this week; seven days out is not.
		s := Summarize(makeDays(sunday), nil, now)
		assert.Equal(t, SummaryThisWeek, s.Status)

		next := day(2025, time.June, 9)
		slots := []TimeSlot{slotAt(next.Add(9*time.Hour), 20*time.Minute)}
		s = Summarize(GroupByDay(slots, nil, monday, next), nil, now)
		assert.Equal(t, SummaryUpcoming, s.Status)
	})

	t.Run("upcoming far out", func(t *testing.T) {
		far := monday.AddDate(0, 0, 59)
		slots := []TimeSlot{slotAt(far.Add(9*time.Hour), 20*time.Minute)}
		s := Summarize(GroupByDay(slots, nil, monday, far), nil, now)
		assert.Equal(t, SummaryUpcoming, s.Status)
	})

	t.Run("on leave", func(t *testing.T) {
		leaves := []Leave{{
			Start:  at(2025, time.June, 1, 0, 0),
			End:    at(2025, time.June, 9, 0, 0),
			Reason: "sabbatical",
			Status: LeaveActive,
		}}
		days := GroupByDay(nil, leaves, monday, sunday)
		s := Summarize(days, leaves, now)
		assert.Equal(t, SummaryOnLeave, s.Status)
		require.NotNil(t, s.Leave)
		assert.Equal(t, "sabbatical", s.Leave.Reason)
	})

	t.Run("no schedule", func(t *testing.T) {
		days := GroupByDay(nil, nil, monday, sunday)
		s := Summarize(days, nil, now)
		assert.Equal(t, SummaryNoSchedule, s.Status)
	})
}

// Computing availability twice over an unchanged snapshot yields
// identical day lists: same slot ids, same order.
func TestAvailabilityIdempotent(t *testing.T) {
	tpl := mondayMorningTemplate(t)
	in := Input{
		Template: tpl,
		Leaves: []Leave{{
			Start:  at(2025, time.June, 4, 0, 0),
			End:    at(2025, time.June, 5, 0, 0),
			Status: LeaveActive,
		}},
		Holidays: []Holiday{{Date: day(2025, time.June, 9), BlockBookings: true}},
	}
	opts := MaterializeOptions{Now: calmNow, MaxFutureDays: 60}

	a := Availability(in, monday, sunday, opts)
	b := Availability(in, monday, sunday, opts)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Status, b[i].Status)
		require.Equal(t, len(a[i].Slots), len(b[i].Slots))
		for j := range a[i].Slots {
			assert.Equal(t, a[i].Slots[j].ID, b[i].Slots[j].ID)
		}
	}
}

// A global blocking holiday empties the whole date regardless of
// location.
func TestAvailabilityGlobalHolidayScenario(t *testing.T) {
	tpl := mondayMorningTemplate(t)
	in := Input{
		Template: tpl,
		Holidays: []Holiday{{Date: monday, BlockBookings: true}},
	}

	days := Availability(in, monday, monday, MaterializeOptions{Now: calmNow, MaxFutureDays: 60})

	require.Len(t, days, 1)
	assert.Equal(t, DayUnavailable, days[0].Status)
	assert.Empty(t, days[0].Slots)
}
