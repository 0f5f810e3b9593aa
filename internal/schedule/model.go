package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode is the consultation mode a block or slot supports.
type Mode string

const (
	ModeInPerson   Mode = "in_person"
	ModeTelehealth Mode = "telehealth"
	ModeBoth       Mode = "both"
)

// Supports reports whether a block with mode m can serve a request for
// mode want. An empty want matches everything.
func (m Mode) Supports(want Mode) bool {
	if want == "" || want == ModeBoth || m == ModeBoth {
		return true
	}
	return m == want
}

// TimeOfDay is a local wall-clock time expressed as minutes since
// midnight, e.g. 540 for 09:00. It serializes as "HH:MM".
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (seconds and anything after are ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	t, err := time.Parse("15:04", s[:5])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors the time of day onto a calendar date in that date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, date.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ScheduleBlock is one recurring working interval inside a weekly
// template, together with its slot-cutting parameters. Duration and
// Buffer are optional and fall back to the doctor-level defaults.
type ScheduleBlock struct {
	Start           TimeOfDay  `json:"start"`
	End             TimeOfDay  `json:"end"`
	Mode            Mode       `json:"mode"`
	LocationID      *uuid.UUID `json:"location_id,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	BufferMinutes   *int       `json:"buffer_minutes,omitempty"`
	Capacity        int        `json:"capacity"`
}

// DaySchedule lists the blocks for one weekday (time.Weekday numbering,
// Sunday = 0).
type DaySchedule struct {
	Weekday time.Weekday    `json:"weekday"`
	Blocks  []ScheduleBlock `json:"blocks"`
}

// WeeklyTemplate is a doctor's recurring weekly pattern. Templates are
// versioned, timestamped records; the engine loads the latest template
// effective on the query date, so historical computations stay
// reproducible.
type WeeklyTemplate struct {
	ID            uuid.UUID     `json:"id"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	Version       int           `json:"version"`
	EffectiveFrom time.Time     `json:"effective_from"`
	Days          []DaySchedule `json:"days"`
}

// BlocksFor returns the block list for a weekday, or nil.
func (t WeeklyTemplate) BlocksFor(wd time.Weekday) []ScheduleBlock {
	for _, d := range t.Days {
		if d.Weekday == wd {
			return d.Blocks
		}
	}
	return nil
}

// ExceptionType distinguishes one-off extra blocks from removals.
type ExceptionType string

const (
	ExceptionAdd   ExceptionType = "add"
	ExceptionBlock ExceptionType = "block"
)

// ScheduleException is a one-off change to a single date: "add" injects
// an extra block, "block" removes every expanded block overlapping its
// time range on that date. Date carries only a calendar day; its clock
// time and location are ignored.
type ScheduleException struct {
	ID              uuid.UUID     `json:"id"`
	DoctorID        uuid.UUID     `json:"doctor_id"`
	Date            time.Time     `json:"date"`
	Type            ExceptionType `json:"type"`
	Start           TimeOfDay     `json:"start"`
	End             TimeOfDay     `json:"end"`
	Mode            Mode          `json:"mode,omitempty"`
	LocationID      *uuid.UUID    `json:"location_id,omitempty"`
	DurationMinutes *int          `json:"duration_minutes,omitempty"`
	BufferMinutes   *int          `json:"buffer_minutes,omitempty"`
	Capacity        int           `json:"capacity"`
}

type LeaveType string

const (
	LeaveFullDay    LeaveType = "full_day"
	LeavePartialDay LeaveType = "partial_day"
)

type LeaveStatus string

const (
	LeaveActive    LeaveStatus = "active"
	LeaveCancelled LeaveStatus = "cancelled"
)

// Leave is a doctor's absence interval. Only active leaves subtract
// availability; cancelling a leave restores future availability on the
// next computation.
type Leave struct {
	ID                   uuid.UUID   `json:"id"`
	DoctorID             uuid.UUID   `json:"doctor_id"`
	Start                time.Time   `json:"start"`
	End                  time.Time   `json:"end"`
	Type                 LeaveType   `json:"type"`
	Reason               string      `json:"reason,omitempty"`
	Status               LeaveStatus `json:"status"`
	KeepExistingBookings bool        `json:"keep_existing_bookings"`
}

// Blocks reports whether the leave removes the interval [start, end).
func (l Leave) Blocks(start, end time.Time) bool {
	return l.Status == LeaveActive && overlaps(start, end, l.Start, l.End)
}

// Holiday blocks all booking on one date, either globally (nil
// LocationID) or for a single location. Like exception dates, Date is a
// pure calendar day.
type Holiday struct {
	ID            uuid.UUID  `json:"id"`
	Date          time.Time  `json:"date"`
	Name          string     `json:"name,omitempty"`
	BlockBookings bool       `json:"block_bookings"`
	LocationID    *uuid.UUID `json:"location_id,omitempty"`
}

// AppliesTo reports whether the holiday removes blocks at a location.
func (h Holiday) AppliesTo(locationID *uuid.UUID) bool {
	if !h.BlockBookings {
		return false
	}
	if h.LocationID == nil {
		return true
	}
	return locationID != nil && *h.LocationID == *locationID
}

// Block is one concrete dated working interval produced by template
// expansion, with slot parameters fully resolved.
type Block struct {
	Start           time.Time
	End             time.Time
	Mode            Mode
	LocationID      *uuid.UUID
	DurationMinutes int
	BufferMinutes   int
	Capacity        int
}

// Occupied is the interval of a non-terminal appointment, used for
// conflict counting during slot materialization.
type Occupied struct {
	Start time.Time
	End   time.Time
}

// TimeSlot is a bookable interval derived from a block. It is never
// persisted; its ID is a pure function of (doctor, date, time, location)
// so repeated computations over unchanged state are byte-identical.
type TimeSlot struct {
	ID                uuid.UUID  `json:"id"`
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	Mode              Mode       `json:"mode"`
	LocationID        *uuid.UUID `json:"location_id,omitempty"`
	Capacity          int        `json:"capacity"`
	CapacityRemaining int        `json:"capacity_remaining"`
}

// slotNamespace seeds the deterministic slot IDs. Fixed forever.
var slotNamespace = uuid.MustParse("8a2b6c1e-55d3-4f0a-9c87-2f1d3e4b5a60")

// SlotID derives the deterministic slot identifier. The doctor is part
// of the input so two doctors working the same instant never share an
// id (the hold-path slot lock keys on it).
func SlotID(doctorID uuid.UUID, start time.Time, locationID *uuid.UUID) uuid.UUID {
	loc := ""
	if locationID != nil {
		loc = locationID.String()
	}
	return uuid.NewSHA1(slotNamespace, []byte(doctorID.String()+"|"+start.UTC().Format(time.RFC3339)+"|"+loc))
}

// Defaults are the doctor-level fallbacks applied when a block or
// exception omits its own slot parameters.
type Defaults struct {
	SlotMinutes   int
	BufferMinutes int
}

// overlaps is the strict open-interval overlap test used everywhere in
// the pipeline: [aStart,aEnd) and [bStart,bEnd) overlap iff
// aStart < bEnd && aEnd > bStart.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// sameDate reports whether two instants fall on the same calendar day in
// a's location.
func sameDate(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// onDay reports whether instant t falls on the calendar day carried by
// the date record. Date columns scan as midnight in whatever location
// the driver attached (UTC for pgx), so converting them into t's
// location would shift the day; only the Y/M/D components are compared,
// each read in its own location.
func onDay(t, date time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := date.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// anchorDay re-anchors a date record's calendar day at midnight in loc.
func anchorDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// dayKey orders calendar days without reference to location.
func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
