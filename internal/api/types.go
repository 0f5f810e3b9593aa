package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/appointment"
	"github.com/clinicore/scheduling-engine/internal/schedule"
)

type AvailabilityResponse struct {
	DoctorID   uuid.UUID                  `json:"doctor_id"`
	DoctorName string                     `json:"doctor_name"`
	Timezone   string                     `json:"timezone"`
	Days       []schedule.DayAvailability `json:"days"`
	Summary    schedule.Summary           `json:"next_available"`
}

type PlaceHoldRequest struct {
	DoctorID   string    `json:"doctor_id"`
	SessionID  string    `json:"session_id"`
	SlotID     string    `json:"slot_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Mode       string    `json:"mode,omitempty"`
	LocationID string    `json:"location_id,omitempty"`
}

type BookRequest struct {
	PatientID string `json:"patient_id"`
	Version   int    `json:"version"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Mode          string     `json:"mode"`
	LocationID    *uuid.UUID `json:"location_id,omitempty"`
	Status        string     `json:"status"`
	Version       int        `json:"version"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Start:         a.StartTime,
		End:           a.EndTime,
		Mode:          string(a.Mode),
		LocationID:    a.LocationID,
		Status:        string(a.Status),
		Version:       a.Version,
		HoldExpiresAt: a.HoldExpiresAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
