package schedule

import "time"

// Input is the read-only snapshot one availability computation runs
// over. Administrative writes happening concurrently only affect later
// computations, never one in flight.
type Input struct {
	Template   WeeklyTemplate
	Exceptions []ScheduleException
	Leaves     []Leave
	Holidays   []Holiday
	Defaults   Defaults
}

// Availability runs the whole pipeline (expand, apply exceptions,
// subtract leaves and holidays, materialize slots, group by day) as one
// pure function of its inputs. Both preview and booking-authority call
// sites share this implementation so they cannot drift.
func Availability(in Input, from, to time.Time, opts MaterializeOptions) []DayAvailability {
	blocks := ExpandTemplate(in.Template, in.Defaults, from, to)
	blocks = ApplyExceptions(blocks, in.Exceptions, in.Defaults, from, to)
	blocks = SubtractLeaves(blocks, in.Leaves)
	blocks = SubtractHolidays(blocks, in.Holidays)
	slots := MaterializeSlots(blocks, opts)
	return GroupByDay(slots, in.Leaves, from, to)
}
