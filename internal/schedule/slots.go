package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// MaterializeOptions parameterize slot cutting. Now is injected, never
// read from the wall clock here.
type MaterializeOptions struct {
	// DoctorID scopes the derived slot ids.
	DoctorID uuid.UUID

	Now           time.Time
	MinLeadTime   time.Duration
	MaxFutureDays int

	// Optional appointment-type overrides for duration/buffer. Nil means
	// use each block's own values.
	DurationOverride *int
	BufferOverride   *int

	// Optional filters. Empty Mode matches everything; nil LocationID
	// matches everything.
	Mode       Mode
	LocationID *uuid.UUID

	// Non-terminal appointments for the doctor in range. Slots are
	// suppressed once the number of overlapping occupants reaches the
	// block's capacity.
	Occupied []Occupied
}

// MaterializeSlots slices surviving blocks into fixed-duration slots.
// Within a block, candidate starts step by duration+buffer from the
// block start; a candidate is emitted only if it ends by the block end,
// starts at or after now+MinLeadTime, starts within the booking horizon,
// passes the mode/location filters, and has occupancy below capacity.
// Output is sorted by start time and stable across identical inputs.
func MaterializeSlots(blocks []Block, opts MaterializeOptions) []TimeSlot {
	horizon := opts.Now.AddDate(0, 0, opts.MaxFutureDays)
	earliest := opts.Now.Add(opts.MinLeadTime)

	var out []TimeSlot
	for _, b := range blocks {
		duration := time.Duration(orDefault(opts.DurationOverride, b.DurationMinutes)) * time.Minute
		buffer := time.Duration(orDefault(opts.BufferOverride, b.BufferMinutes)) * time.Minute
		if duration <= 0 {
			continue
		}
		if opts.LocationID != nil && (b.LocationID == nil || *b.LocationID != *opts.LocationID) {
			continue
		}
		if !b.Mode.Supports(opts.Mode) {
			continue
		}

		for t := b.Start; !t.Add(duration).After(b.End); t = t.Add(duration + buffer) {
			if t.After(horizon) {
				break
			}
			if t.Before(earliest) {
				continue
			}
			occupants := 0
			for _, o := range opts.Occupied {
				if overlaps(t, t.Add(duration), o.Start, o.End) {
					occupants++
				}
			}
			if occupants >= b.Capacity {
				continue
			}
			out = append(out, TimeSlot{
				ID:                SlotID(opts.DoctorID, t, b.LocationID),
				Start:             t,
				End:               t.Add(duration),
				Mode:              b.Mode,
				LocationID:        b.LocationID,
				Capacity:          b.Capacity,
				CapacityRemaining: b.Capacity - occupants,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
