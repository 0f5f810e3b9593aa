package schedule

import (
	"time"

	"github.com/google/uuid"
)

// ExpandTemplate turns a weekly template into concrete dated blocks over
// [from, to] (inclusive calendar days, interpreted in from's location).
// It is purely generative: no filtering happens here.
func ExpandTemplate(tpl WeeklyTemplate, defs Defaults, from, to time.Time) []Block {
	var out []Block
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, b := range tpl.BlocksFor(day.Weekday()) {
			out = append(out, instantiate(day, b.Start, b.End, b.Mode, b.LocationID, b.DurationMinutes, b.BufferMinutes, b.Capacity, defs))
		}
	}
	return out
}

// ApplyExceptions folds one-off exceptions into an expanded block list.
// "add" instantiates an extra block exactly like the expander would;
// "block" subtracts the exception's time range from every block on that
// date, keeping the non-overlapping remainders so availability resumes
// after the blocked window. Exception dates are calendar days; they are
// re-anchored in from's location before any instant arithmetic so the
// record's own anchoring (UTC midnight from the store) never shifts the
// day.
func ApplyExceptions(blocks []Block, excs []ScheduleException, defs Defaults, from, to time.Time) []Block {
	for _, exc := range excs {
		if k := dayKey(exc.Date); k < dayKey(from) || k > dayKey(to) {
			continue
		}
		date := anchorDay(exc.Date, from.Location())
		switch exc.Type {
		case ExceptionAdd:
			blocks = append(blocks, instantiate(date, exc.Start, exc.End, exc.Mode, exc.LocationID, exc.DurationMinutes, exc.BufferMinutes, exc.Capacity, defs))
		case ExceptionBlock:
			excStart := exc.Start.On(date)
			excEnd := exc.End.On(date)
			var kept []Block
			for _, b := range blocks {
				if !onDay(b.Start, exc.Date) || !overlaps(b.Start, b.End, excStart, excEnd) {
					kept = append(kept, b)
					continue
				}
				if b.Start.Before(excStart) {
					head := b
					head.End = excStart
					kept = append(kept, head)
				}
				if b.End.After(excEnd) {
					tail := b
					tail.Start = excEnd
					kept = append(kept, tail)
				}
			}
			blocks = kept
		}
	}
	return blocks
}

func instantiate(date time.Time, start, end TimeOfDay, mode Mode, locID *uuid.UUID, duration, buffer *int, capacity int, defs Defaults) Block {
	if mode == "" {
		mode = ModeBoth
	}
	if capacity < 1 {
		capacity = 1
	}
	return Block{
		Start:           start.On(date),
		End:             end.On(date),
		Mode:            mode,
		LocationID:      locID,
		DurationMinutes: orDefault(duration, defs.SlotMinutes),
		BufferMinutes:   orDefault(buffer, defs.BufferMinutes),
		Capacity:        capacity,
	}
}

func orDefault(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
