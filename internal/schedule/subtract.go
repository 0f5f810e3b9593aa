package schedule

// SubtractLeaves removes every block overlapping an active leave.
// Cancelled leaves are ignored entirely. Filtering reuses the input's
// backing array; callers must not read the input slice afterwards.
func SubtractLeaves(blocks []Block, leaves []Leave) []Block {
	if len(leaves) == 0 {
		return blocks
	}
	kept := blocks[:0]
	for _, b := range blocks {
		removed := false
		for _, l := range leaves {
			if l.Blocks(b.Start, b.End) {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, b)
		}
	}
	return kept
}

// SubtractHolidays removes blocks falling on a booking-blocking holiday.
// A holiday with no location is global; a location-scoped holiday only
// removes blocks at that location. Holiday dates are compared as
// calendar days against the block's local day.
func SubtractHolidays(blocks []Block, holidays []Holiday) []Block {
	if len(holidays) == 0 {
		return blocks
	}
	kept := blocks[:0]
	for _, b := range blocks {
		removed := false
		for _, h := range holidays {
			if onDay(b.Start, h.Date) && h.AppliesTo(b.LocationID) {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, b)
		}
	}
	return kept
}
