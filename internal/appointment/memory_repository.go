package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/schedule"
)

// MemoryRepository is an in-memory Repository used by tests and the
// simulator. A single mutex around every method gives it the same
// atomicity the conditional SQL statements give PgRepository.
type MemoryRepository struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	locations    map[uuid.UUID]Location
	templates    map[uuid.UUID][]schedule.WeeklyTemplate
	exceptions   map[uuid.UUID][]schedule.ScheduleException
	leaves       map[uuid.UUID][]schedule.Leave
	holidays     []schedule.Holiday
	appointments map[uuid.UUID]Appointment
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		locations:    make(map[uuid.UUID]Location),
		templates:    make(map[uuid.UUID][]schedule.WeeklyTemplate),
		exceptions:   make(map[uuid.UUID][]schedule.ScheduleException),
		leaves:       make(map[uuid.UUID][]schedule.Leave),
		holidays:     nil,
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *MemoryRepository) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryRepository) AddLocation(l Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[l.ID] = l
}

func (m *MemoryRepository) AddTemplate(t schedule.WeeklyTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.DoctorID] = append(m.templates[t.DoctorID], t)
}

func (m *MemoryRepository) AddException(e schedule.ScheduleException) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions[e.DoctorID] = append(m.exceptions[e.DoctorID], e)
}

func (m *MemoryRepository) AddLeave(l schedule.Leave) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[l.DoctorID] = append(m.leaves[l.DoctorID], l)
}

func (m *MemoryRepository) AddHoliday(h schedule.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
}

// Events returns a copy of the recorded event log.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetLocationByID(_ context.Context, id uuid.UUID) (*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locations[id]
	if !ok {
		return nil, ErrLocationNotFound
	}
	return &l, nil
}

func (m *MemoryRepository) GetTemplateFor(_ context.Context, doctorID uuid.UUID, onDate time.Time) (*schedule.WeeklyTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *schedule.WeeklyTemplate
	for i := range m.templates[doctorID] {
		t := m.templates[doctorID][i]
		if t.EffectiveFrom.After(onDate) {
			continue
		}
		if best == nil ||
			t.EffectiveFrom.After(best.EffectiveFrom) ||
			(t.EffectiveFrom.Equal(best.EffectiveFrom) && t.Version > best.Version) {
			cp := t
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrTemplateNotFound
	}
	return best, nil
}

func (m *MemoryRepository) ListExceptions(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.ScheduleException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []schedule.ScheduleException
	for _, e := range m.exceptions[doctorID] {
		if k := dayOf(e.Date); k < dayOf(from) || k > dayOf(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryRepository) ListLeaves(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.Leave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []schedule.Leave
	for _, l := range m.leaves[doctorID] {
		if l.Start.Before(to) && l.End.After(from) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListHolidays(_ context.Context, from, to time.Time) ([]schedule.Holiday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []schedule.Holiday
	for _, h := range m.holidays {
		if k := dayOf(h.Date); k < dayOf(from) || k > dayOf(to) {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (m *MemoryRepository) ListOccupying(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || !a.Status.Occupies() {
			continue
		}
		if a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) CreateHold(_ context.Context, hold Appointment, capacity int) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	occupants := 0
	for _, a := range m.appointments {
		if a.DoctorID != hold.DoctorID || !a.Status.Occupies() {
			continue
		}
		if a.StartTime.Before(hold.EndTime) && a.EndTime.After(hold.StartTime) {
			occupants++
		}
	}
	if occupants >= capacity {
		return nil, ErrSlotTaken
	}

	now := time.Now()
	hold.Status = StatusHeld
	hold.Version = 1
	hold.CreatedAt = now
	hold.UpdatedAt = now
	m.appointments[hold.ID] = hold
	return &hold, nil
}

func (m *MemoryRepository) ReleaseHold(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != StatusHeld {
		return nil, ErrAppointmentNotFound
	}
	delete(m.appointments, id)
	return &a, nil
}

func (m *MemoryRepository) ReleaseSessionHolds(_ context.Context, sessionID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []Appointment
	for id, a := range m.appointments {
		if a.Status == StatusHeld && a.SessionID == sessionID {
			released = append(released, a)
			delete(m.appointments, id)
		}
	}
	return released, nil
}

func (m *MemoryRepository) ConfirmBooking(_ context.Context, id uuid.UUID, version int, patientID uuid.UUID, now time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != StatusHeld || a.Version != version ||
		a.HoldExpiresAt == nil || !a.HoldExpiresAt.After(now) {
		return nil, ErrAppointmentNotFound
	}

	a.Status = StatusBooked
	a.PatientID = &patientID
	a.HoldExpiresAt = nil
	a.Version++
	a.UpdatedAt = now
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.Version++
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) DeleteExpiredHolds(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []Appointment
	for id, a := range m.appointments {
		if a.Status == StatusHeld && a.HoldExpiresAt != nil && !a.HoldExpiresAt.After(now) {
			expired = append(expired, a)
			delete(m.appointments, id)
		}
	}
	return expired, nil
}

func (m *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Appointment
	for _, a := range m.appointments {
		if a.PatientID != nil && *a.PatientID == patientID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// dayOf orders calendar days by each value's own local components,
// matching how a DATE column compares against a date-typed parameter.
func dayOf(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
