package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/scheduling-engine/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.Timezone,
		&d.DefaultSlotMinutes,
		&d.DefaultBufferMinutes,
		&d.MinLeadTimeMinutes,
		&d.MaxFutureDays,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var patientID, locationID *uuid.UUID
	var expiresAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&patientID,
		&a.SessionID,
		&a.StartTime,
		&a.EndTime,
		&a.Mode,
		&locationID,
		&a.Status,
		&expiresAt,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.PatientID = patientID
	a.LocationID = locationID
	a.HoldExpiresAt = expiresAt
	return &a, nil
}

const appointmentColumns = `id, doctor_id, patient_id, session_id, start_time, end_time, mode, location_id, status, hold_expires_at, version, created_at, updated_at`

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, timezone, default_slot_minutes, default_buffer_minutes, min_lead_minutes, max_future_days, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetLocationByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	var loc Location
	err := r.pool.QueryRow(ctx, `
		SELECT id, name
		FROM locations
		WHERE id = $1
	`, id).Scan(&loc.ID, &loc.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return &loc, nil
}

// GetTemplateFor loads the latest template version effective on the
// given date. Day blocks are stored as JSONB.
func (r *PgRepository) GetTemplateFor(ctx context.Context, doctorID uuid.UUID, onDate time.Time) (*schedule.WeeklyTemplate, error) {
	var tpl schedule.WeeklyTemplate
	var days []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, version, effective_from, days
		FROM schedule_templates
		WHERE doctor_id = $1
		  AND effective_from <= $2
		ORDER BY effective_from DESC, version DESC
		LIMIT 1
	`, doctorID, onDate).Scan(&tpl.ID, &tpl.DoctorID, &tpl.Version, &tpl.EffectiveFrom, &days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(days, &tpl.Days); err != nil {
		return nil, fmt.Errorf("decode template days: %w", err)
	}

	return &tpl, nil
}

func (r *PgRepository) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.ScheduleException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, date, type, start_minute, end_minute, mode, location_id, duration_minutes, buffer_minutes, capacity
		FROM schedule_exceptions
		WHERE doctor_id = $1
		  AND date >= $2
		  AND date <= $3
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.ScheduleException
	for rows.Next() {
		var e schedule.ScheduleException
		var startMin, endMin int
		var mode *string
		err := rows.Scan(&e.ID, &e.DoctorID, &e.Date, &e.Type, &startMin, &endMin, &mode, &e.LocationID, &e.DurationMinutes, &e.BufferMinutes, &e.Capacity)
		if err != nil {
			return nil, err
		}
		e.Start = schedule.TimeOfDay(startMin)
		e.End = schedule.TimeOfDay(endMin)
		if mode != nil {
			e.Mode = schedule.Mode(*mode)
		}
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.Leave, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, type, reason, status, keep_existing_bookings
		FROM leaves
		WHERE doctor_id = $1
		  AND start_time < $3
		  AND end_time > $2
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Leave
	for rows.Next() {
		var l schedule.Leave
		var reason *string
		err := rows.Scan(&l.ID, &l.DoctorID, &l.Start, &l.End, &l.Type, &reason, &l.Status, &l.KeepExistingBookings)
		if err != nil {
			return nil, err
		}
		if reason != nil {
			l.Reason = *reason
		}
		result = append(result, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListHolidays(ctx context.Context, from, to time.Time) ([]schedule.Holiday, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, name, block_bookings, location_id
		FROM holidays
		WHERE date >= $1
		  AND date <= $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Holiday
	for rows.Next() {
		var h schedule.Holiday
		var name *string
		err := rows.Scan(&h.ID, &h.Date, &name, &h.BlockBookings, &h.LocationID)
		if err != nil {
			return nil, err
		}
		if name != nil {
			h.Name = *name
		}
		result = append(result, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('held', 'booked', 'checked_in')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// CreateHold is the first-writer-wins insert: the row is created only
// while the occupant count over the hold's interval stays below
// capacity, in one statement, so two racing sessions cannot both
// succeed.
func (r *PgRepository) CreateHold(ctx context.Context, hold Appointment, capacity int) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, session_id, start_time, end_time, mode, location_id, status, hold_expires_at, version, created_at, updated_at)
		SELECT $1, $2, NULL, $3, $4, $5, $6, $7, 'held', $8, 1, now(), now()
		WHERE (
			SELECT count(*)
			FROM appointments
			WHERE doctor_id = $2
			  AND status IN ('held', 'booked', 'checked_in')
			  AND start_time < $5
			  AND end_time > $4
		) < $9
		RETURNING `+appointmentColumns+`
	`, hold.ID, hold.DoctorID, hold.SessionID, hold.StartTime, hold.EndTime, hold.Mode, hold.LocationID, hold.HoldExpiresAt, capacity)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) ReleaseHold(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		  AND status = 'held'
		RETURNING `+appointmentColumns+`
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ReleaseSessionHolds(ctx context.Context, sessionID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM appointments
		WHERE session_id = $1
		  AND status = 'held'
		RETURNING `+appointmentColumns+`
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ConfirmBooking(ctx context.Context, id uuid.UUID, version int, patientID uuid.UUID, now time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'booked',
		    patient_id = $3,
		    hold_expires_at = NULL,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'held'
		  AND version = $2
		  AND hold_expires_at > $4
		RETURNING `+appointmentColumns+`
	`, id, version, patientID, now)
	return scanAppointment(row)
}

func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM appointments
		WHERE status = 'held'
		  AND hold_expires_at IS NOT NULL
		  AND hold_expires_at < $1
		RETURNING `+appointmentColumns+`
	`, now)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
