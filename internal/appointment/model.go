package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/schedule"
)

type Status string

const (
	StatusHeld      Status = "held"
	StatusBooked    Status = "booked"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Occupies reports whether an appointment in this status blocks its time
// range for conflict purposes. Terminal states are transparent to
// availability.
func (s Status) Occupies() bool {
	return s == StatusHeld || s == StatusBooked || s == StatusCheckedIn
}

// transitions is the appointment state machine. held->booked is handled
// separately by the booking finalizer because it also checks the hold
// TTL and version.
var transitions = map[Status][]Status{
	StatusBooked:    {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Appointment is a row in the appointment store. A hold is an
// appointment in "held" status with HoldExpiresAt set and no patient
// yet; finalizing fills PatientID and moves it to "booked". Version is
// an optimistic-concurrency counter incremented on every transition.
type Appointment struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	PatientID     *uuid.UUID
	SessionID     string
	StartTime     time.Time
	EndTime       time.Time
	Mode          schedule.Mode
	LocationID    *uuid.UUID
	Status        Status
	HoldExpiresAt *time.Time
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Interval returns the occupied interval for conflict counting.
func (a Appointment) Interval() schedule.Occupied {
	return schedule.Occupied{Start: a.StartTime, End: a.EndTime}
}

// Doctor carries the profile fields the engine reads: identity,
// timezone, and the slot-cutting defaults. Profile CRUD itself is owned
// elsewhere.
type Doctor struct {
	ID                   uuid.UUID
	Name                 string
	Specialty            *string
	Timezone             string
	DefaultSlotMinutes   int
	DefaultBufferMinutes int
	MinLeadTimeMinutes   int
	MaxFutureDays        int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Location struct {
	ID   uuid.UUID
	Name string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
