package schedule

import "time"

// DayStatus classifies one calendar day of availability.
type DayStatus string

const (
	DayAvailable   DayStatus = "available"
	DayUnavailable DayStatus = "unavailable"
	DayLeave       DayStatus = "leave"
)

// LeaveInfo is surfaced on leave days so callers can tell patients when
// the doctor is back.
type LeaveInfo struct {
	Reason  string    `json:"reason,omitempty"`
	EndDate time.Time `json:"end_date"`
}

// DayAvailability groups the materialized slots of one calendar day.
type DayAvailability struct {
	Date          time.Time  `json:"date"`
	Status        DayStatus  `json:"status"`
	Slots         []TimeSlot `json:"slots"`
	Leave         *LeaveInfo `json:"leave_info,omitempty"`
	NextAvailable *time.Time `json:"next_available,omitempty"`
}

// GroupByDay distributes slots across every calendar day in [from, to],
// including days with zero slots. A day overlapped by an active leave is
// classified "leave" even when slots outside the leave window survived;
// otherwise a day with no slots is "unavailable".
func GroupByDay(slots []TimeSlot, leaves []Leave, from, to time.Time) []DayAvailability {
	var days []DayAvailability
	for day := startOfDay(from); !day.After(to); day = day.AddDate(0, 0, 1) {
		dayEnd := day.AddDate(0, 0, 1)

		var daySlots []TimeSlot
		for _, s := range slots {
			if !s.Start.Before(day) && s.Start.Before(dayEnd) {
				daySlots = append(daySlots, s)
			}
		}

		d := DayAvailability{Date: day, Slots: daySlots}
		if onLeave := activeLeaveOver(leaves, day, dayEnd); onLeave != nil {
			d.Status = DayLeave
			d.Leave = &LeaveInfo{Reason: onLeave.Reason, EndDate: onLeave.End}
		} else if len(daySlots) == 0 {
			d.Status = DayUnavailable
		} else {
			d.Status = DayAvailable
		}
		if len(daySlots) > 0 {
			next := daySlots[0].Start
			d.NextAvailable = &next
		}
		days = append(days, d)
	}
	return days
}

func activeLeaveOver(leaves []Leave, start, end time.Time) *Leave {
	for i, l := range leaves {
		if l.Status == LeaveActive && overlaps(start, end, l.Start, l.End) {
			return &leaves[i]
		}
	}
	return nil
}

// SummaryStatus says, at a glance, when the doctor can next be seen.
type SummaryStatus string

const (
	SummaryToday      SummaryStatus = "today"
	SummaryTomorrow   SummaryStatus = "tomorrow"
	SummaryThisWeek   SummaryStatus = "this_week"
	SummaryUpcoming   SummaryStatus = "upcoming"
	SummaryOnLeave    SummaryStatus = "on_leave"
	SummaryNoSchedule SummaryStatus = "no_schedule"
)

// Summary is the "next available" digest over a day range.
type Summary struct {
	Status SummaryStatus `json:"status"`
	Date   *time.Time    `json:"date,omitempty"`
	Slot   *TimeSlot     `json:"slot,omitempty"`
	Leave  *LeaveInfo    `json:"leave_info,omitempty"`
}

// Summarize scans days in order and reports the first one with at least
// one slot. "this_week" covers the seven days starting today; anything
// further out is "upcoming". If now falls inside an active leave and
// nothing is bookable sooner, the summary reports the leave instead.
func Summarize(days []DayAvailability, leaves []Leave, now time.Time) Summary {
	for _, d := range days {
		if len(d.Slots) == 0 {
			continue
		}
		date := d.Date
		slot := d.Slots[0]
		s := Summary{Date: &date, Slot: &slot}
		weekEnd := startOfDay(now.In(d.Date.Location())).AddDate(0, 0, 7)
		switch {
		case sameDate(d.Date, now):
			s.Status = SummaryToday
		case sameDate(d.Date, now.AddDate(0, 0, 1)):
			s.Status = SummaryTomorrow
		case d.Date.Before(weekEnd):
			s.Status = SummaryThisWeek
		default:
			s.Status = SummaryUpcoming
		}
		return s
	}

	if l := activeLeaveOver(leaves, now, now.Add(time.Nanosecond)); l != nil {
		return Summary{
			Status: SummaryOnLeave,
			Leave:  &LeaveInfo{Reason: l.Reason, EndDate: l.End},
		}
	}
	return Summary{Status: SummaryNoSchedule}
}
