package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/schedule"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrLocationNotFound    = errors.New("location not found")
	ErrTemplateNotFound    = errors.New("no schedule template for doctor")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all store interactions needed by the service.
// CreateHold, ConfirmBooking, TransitionStatus and ReleaseHold must be
// single atomic store operations: they are the only writes that race,
// and first writer wins.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetLocationByID(ctx context.Context, id uuid.UUID) (*Location, error)

	// Availability-computation inputs (read-only snapshot).
	GetTemplateFor(ctx context.Context, doctorID uuid.UUID, onDate time.Time) (*schedule.WeeklyTemplate, error)
	ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.ScheduleException, error)
	ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.Leave, error)
	ListHolidays(ctx context.Context, from, to time.Time) ([]schedule.Holiday, error)

	// Non-terminal appointments overlapping [from, to) for conflict
	// counting.
	ListOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateHold inserts a held appointment only while the number of
	// occupying appointments overlapping its interval stays below
	// capacity. Returns ErrSlotTaken when the condition fails.
	CreateHold(ctx context.Context, hold Appointment, capacity int) (*Appointment, error)

	// ReleaseHold deletes a hold if it is still held. Returns
	// ErrAppointmentNotFound when there was nothing to release.
	ReleaseHold(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ReleaseSessionHolds deletes every outstanding hold owned by a
	// client session, returning the released holds.
	ReleaseSessionHolds(ctx context.Context, sessionID string) ([]Appointment, error)

	// ConfirmBooking transitions held -> booked iff the version still
	// matches and the hold has not expired at now. Returns
	// ErrAppointmentNotFound when the conditional update matched no row.
	ConfirmBooking(ctx context.Context, id uuid.UUID, version int, patientID uuid.UUID, now time.Time) (*Appointment, error)

	// TransitionStatus applies from -> to conditionally on the current
	// status, incrementing the version.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// DeleteExpiredHolds removes every held appointment whose
	// hold_expires_at has passed, returning the removed holds. Safe to
	// run concurrently with booking attempts.
	DeleteExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error)

	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
