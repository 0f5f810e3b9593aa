package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling-engine/internal/clock"
	"github.com/clinicore/scheduling-engine/internal/config"
	redisclient "github.com/clinicore/scheduling-engine/internal/redis"
	"github.com/clinicore/scheduling-engine/internal/schedule"
)

const (
	EventHoldPlaced    = "HOLD_PLACED"
	EventHoldReleased  = "HOLD_RELEASED"
	EventHoldExpired   = "HOLD_EXPIRED"
	EventBooked        = "APPOINTMENT_BOOKED"
	EventStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

var (
	ErrSlotTaken         = errors.New("slot is no longer available")
	ErrSlotBeingHeld     = errors.New("slot is currently being reserved, please retry")
	ErrHoldExpired       = errors.New("hold has expired")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRange      = errors.New("invalid date range")
	ErrMissingSession    = errors.New("session id is required")
)

// rangeLimitDays caps one availability query; longer horizons are paged
// by the caller.
const rangeLimitDays = 92

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier redisclient.Notifier
	clk      clock.Clock
	cfg      config.Config
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier redisclient.Notifier, clk clock.Clock, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		clk:      clk,
		cfg:      cfg,
		log:      log,
	}
}

// AvailabilityRequest identifies one availability query. From and To are
// inclusive calendar dates.
type AvailabilityRequest struct {
	DoctorID   uuid.UUID
	From       time.Time
	To         time.Time
	Mode       schedule.Mode
	LocationID *uuid.UUID
}

// DoctorAvailability is the read-only availability view.
type DoctorAvailability struct {
	Doctor  *Doctor
	Days    []schedule.DayAvailability
	Summary schedule.Summary
}

// GetAvailability loads the read-only snapshot for a doctor and runs the
// pure pipeline over it. A doctor without a template simply has no
// availability; malformed admin records degrade to empty days rather
// than failing the query.
func (s *Service) GetAvailability(ctx context.Context, req AvailabilityRequest) (*DoctorAvailability, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if req.To.Before(req.From) {
		return nil, ErrInvalidRange
	}
	if int(req.To.Sub(req.From).Hours()/24) > rangeLimitDays {
		return nil, ErrInvalidRange
	}

	loc, err := time.LoadLocation(doctor.Timezone)
	if err != nil {
		s.log.Warn().Str("doctor_id", doctor.ID.String()).Str("timezone", doctor.Timezone).Msg("unknown doctor timezone, falling back to UTC")
		loc = time.UTC
	}
	from := dateIn(req.From, loc)
	to := dateIn(req.To, loc)

	in := schedule.Input{Defaults: s.defaultsFor(doctor)}

	tpl, err := s.repo.GetTemplateFor(ctx, doctor.ID, from)
	switch {
	case err == nil:
		in.Template = *tpl
	case errors.Is(err, ErrTemplateNotFound):
		// No template: every day is unavailable, not an error.
	default:
		return nil, fmt.Errorf("load template: %w", err)
	}

	if in.Exceptions, err = s.repo.ListExceptions(ctx, doctor.ID, from, to); err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	if in.Leaves, err = s.repo.ListLeaves(ctx, doctor.ID, from, to.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	if in.Holidays, err = s.repo.ListHolidays(ctx, from, to); err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}

	occupying, err := s.repo.ListOccupying(ctx, doctor.ID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load occupying appointments: %w", err)
	}

	minLead := doctor.MinLeadTimeMinutes
	if minLead <= 0 {
		minLead = s.cfg.DefaultMinLeadMins
	}
	maxFuture := doctor.MaxFutureDays
	if maxFuture <= 0 {
		maxFuture = s.cfg.DefaultMaxFutureDays
	}

	now := s.clk.Now().In(loc)
	opts := schedule.MaterializeOptions{
		DoctorID:      doctor.ID,
		Now:           now,
		MinLeadTime:   time.Duration(minLead) * time.Minute,
		MaxFutureDays: maxFuture,
		Mode:          req.Mode,
		LocationID:    req.LocationID,
		Occupied:      occupiedIntervals(occupying),
	}

	days := schedule.Availability(in, from, to, opts)

	return &DoctorAvailability{
		Doctor:  doctor,
		Days:    days,
		Summary: schedule.Summarize(days, in.Leaves, now),
	}, nil
}

// HoldRequest asks to reserve one slot for a client session.
type HoldRequest struct {
	DoctorID   uuid.UUID
	SessionID  string
	SlotID     uuid.UUID
	Start      time.Time
	End        time.Time
	Mode       schedule.Mode
	LocationID *uuid.UUID
}

// PlaceHold reserves a slot for a bounded time. A session gets at most
// one outstanding hold: any prior hold of the same session is explicitly
// released first. The slot is re-derived from the pipeline before
// inserting, so a stale or forged slot reference fails with ErrSlotTaken
// and no side effects beyond the release of the prior hold.
func (s *Service) PlaceHold(ctx context.Context, req HoldRequest) (*Appointment, error) {
	if req.SessionID == "" {
		return nil, ErrMissingSession
	}

	released, err := s.repo.ReleaseSessionHolds(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("release prior session holds: %w", err)
	}
	for _, old := range released {
		s.logEvent(ctx, old.ID, EventHoldReleased, map[string]any{"reason": "superseded"})
		s.notifier.AvailabilityChanged(ctx, old.DoctorID)
	}

	slot, err := s.lookupSlot(ctx, req)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		expiresAt := s.clk.Now().Add(s.cfg.HoldTTL)
		hold := Appointment{
			ID:            uuid.New(),
			DoctorID:      req.DoctorID,
			SessionID:     req.SessionID,
			StartTime:     slot.Start,
			EndTime:       slot.End,
			Mode:          slot.Mode,
			LocationID:    slot.LocationID,
			Status:        StatusHeld,
			HoldExpiresAt: &expiresAt,
		}

		appt, err := s.repo.CreateHold(lockCtx, hold, slot.Capacity)
		if err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventHoldPlaced, map[string]any{
			"doctor_id":  req.DoctorID.String(),
			"session_id": req.SessionID,
			"slot_id":    slot.ID.String(),
			"expires_at": expiresAt,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingHeld
		}
		return nil, err
	}

	s.notifier.AvailabilityChanged(ctx, req.DoctorID)
	return created, nil
}

// lookupSlot recomputes availability for the requested day and returns
// the slot with the requested id, so holds can only land on slots the
// pipeline actually emits.
func (s *Service) lookupSlot(ctx context.Context, req HoldRequest) (*schedule.TimeSlot, error) {
	day := req.Start
	avail, err := s.GetAvailability(ctx, AvailabilityRequest{
		DoctorID:   req.DoctorID,
		From:       day,
		To:         day,
		Mode:       req.Mode,
		LocationID: req.LocationID,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range avail.Days {
		for i, slot := range d.Slots {
			if slot.ID == req.SlotID && slot.Start.Equal(req.Start) {
				return &d.Slots[i], nil
			}
		}
	}
	return nil, ErrSlotTaken
}

// ReleaseHold frees a held slot immediately. Releasing a hold that no
// longer exists is a no-op, so the operation is safely retryable.
func (s *Service) ReleaseHold(ctx context.Context, holdID uuid.UUID) error {
	appt, err := s.repo.ReleaseHold(ctx, holdID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil
		}
		return fmt.Errorf("release hold: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventHoldReleased, map[string]any{"reason": "explicit"})
	s.notifier.AvailabilityChanged(ctx, appt.DoctorID)
	return nil
}

// ConfirmBooking converts a live hold into a booked appointment. The
// transition is a single conditional update on (status, version,
// hold_expires_at); every rejection means the caller must re-fetch
// availability and re-select.
func (s *Service) ConfirmBooking(ctx context.Context, holdID uuid.UUID, version int, patientID uuid.UUID) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	now := s.clk.Now()
	booked, err := s.repo.ConfirmBooking(ctx, holdID, version, patientID, now)
	if err == nil {
		s.logEvent(ctx, booked.ID, EventBooked, map[string]any{
			"patient_id": patientID.String(),
		})
		s.notifier.AvailabilityChanged(ctx, booked.DoctorID)
		return booked, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}

	// The conditional update matched nothing: classify the rejection.
	appt, getErr := s.repo.GetAppointmentByID(ctx, holdID)
	switch {
	case errors.Is(getErr, ErrAppointmentNotFound):
		// Swept or released in the meantime.
		return nil, ErrHoldExpired
	case getErr != nil:
		return nil, fmt.Errorf("confirm booking: %w", getErr)
	case appt.Status == StatusHeld && appt.HoldExpiresAt != nil && appt.HoldExpiresAt.Before(now):
		// Expired but not yet swept; clean it up eagerly.
		if _, relErr := s.repo.ReleaseHold(ctx, appt.ID); relErr != nil && !errors.Is(relErr, ErrAppointmentNotFound) {
			s.log.Error().Err(relErr).Str("appointment_id", appt.ID.String()).Msg("failed to drop expired hold during confirm")
		}
		s.logEvent(ctx, appt.ID, EventHoldExpired, map[string]any{"reason": "confirm_after_expiry"})
		s.notifier.AvailabilityChanged(ctx, appt.DoctorID)
		return nil, ErrHoldExpired
	default:
		// Version moved or the status is no longer held.
		return nil, ErrSlotTaken
	}
}

// ExpireHolds removes every hold past its TTL. Called periodically by
// the expiry worker; idempotent and safe to run concurrently with
// booking attempts because the delete and the confirm are both
// conditional on status.
func (s *Service) ExpireHolds(ctx context.Context) (int, error) {
	expired, err := s.repo.DeleteExpiredHolds(ctx, s.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired holds: %w", err)
	}

	doctors := map[uuid.UUID]struct{}{}
	for _, appt := range expired {
		s.logEvent(ctx, appt.ID, EventHoldExpired, map[string]any{"reason": "sweep"})
		doctors[appt.DoctorID] = struct{}{}
	}
	for doctorID := range doctors {
		s.notifier.AvailabilityChanged(ctx, doctorID)
	}

	return len(expired), nil
}

// Transition moves a non-held appointment along the status state
// machine (cancel, check-in, complete, no-show), bumping the version.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.TransitionStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the race against a concurrent transition.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})
	if !to.Occupies() {
		// A freed slot changes availability.
		s.notifier.AvailabilityChanged(ctx, updated.DoctorID)
	}

	return updated, nil
}

// GetAppointment retrieves an appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListPatientAppointments retrieves appointments for a patient.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) defaultsFor(d *Doctor) schedule.Defaults {
	defs := schedule.Defaults{
		SlotMinutes:   d.DefaultSlotMinutes,
		BufferMinutes: d.DefaultBufferMinutes,
	}
	if defs.SlotMinutes <= 0 {
		defs.SlotMinutes = s.cfg.DefaultSlotMinutes
	}
	if defs.BufferMinutes < 0 {
		defs.BufferMinutes = s.cfg.DefaultBufferMinutes
	}
	return defs
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clk.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appointmentID.String()).Msg("failed to insert event log")
	}
}

func occupiedIntervals(appointments []Appointment) []schedule.Occupied {
	out := make([]schedule.Occupied, 0, len(appointments))
	for _, a := range appointments {
		out = append(out, a.Interval())
	}
	return out
}

// dateIn re-anchors the calendar date of t into loc at midnight.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
