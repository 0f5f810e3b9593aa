package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-engine/internal/config"
	redisclient "github.com/clinicore/scheduling-engine/internal/redis"
	"github.com/clinicore/scheduling-engine/internal/schedule"
)

// testClock is a settable clock so tests can cross the hold TTL without
// sleeping.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() config.Config {
	return config.Config{
		HoldTTL:              90 * time.Second,
		LockTTL:              5 * time.Second,
		DefaultSlotMinutes:   30,
		DefaultBufferMinutes: 0,
		DefaultMinLeadMins:   60,
		DefaultMaxFutureDays: 60,
	}
}

// fixture wires a service over the in-memory repository with one doctor
// who works Mondays 09:00-12:00 local time in 30-minute slots.
type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	clk     *testClock
	doctor  Doctor
	patient Patient
	monday  time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureInZone(t, "UTC")
}

// newFixtureInZone places the doctor in tz; the template hours stay
// 09:00-12:00 local. Request dates and stored calendar dates remain
// UTC-midnight instants, the way DATE columns scan.
func newFixtureInZone(t *testing.T, tz string) *fixture {
	t.Helper()

	repo := NewMemoryRepository()

	doctor := Doctor{
		ID:                 uuid.New(),
		Name:               "Dr. Asha Rao",
		Timezone:           tz,
		DefaultSlotMinutes: 30,
		MinLeadTimeMinutes: 60,
		MaxFutureDays:      30,
	}
	repo.AddDoctor(doctor)

	patient := Patient{ID: uuid.New(), Name: "Ravi Menon"}
	repo.AddPatient(patient)

	start, err := schedule.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := schedule.ParseTimeOfDay("12:00")
	require.NoError(t, err)

	repo.AddTemplate(schedule.WeeklyTemplate{
		ID:            uuid.New(),
		DoctorID:      doctor.ID,
		Version:       1,
		EffectiveFrom: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Days: []schedule.DaySchedule{
			{
				Weekday: time.Monday,
				Blocks: []schedule.ScheduleBlock{
					{Start: start, End: end, Mode: schedule.ModeInPerson, Capacity: 1},
				},
			},
		},
	})

	// Sunday morning; the Monday under test is entirely beyond the
	// one-hour lead time.
	clk := newTestClock(time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC))

	svc := NewService(repo, redisclient.NoopLocker{}, redisclient.NoopNotifier{}, clk, testConfig(), zerolog.Nop())

	return &fixture{
		svc:     svc,
		repo:    repo,
		clk:     clk,
		doctor:  doctor,
		patient: patient,
		monday:  time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) slots(t *testing.T) []schedule.TimeSlot {
	t.Helper()
	avail, err := f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: f.doctor.ID,
		From:     f.monday,
		To:       f.monday,
	})
	require.NoError(t, err)
	require.Len(t, avail.Days, 1)
	return avail.Days[0].Slots
}

func (f *fixture) holdSlot(t *testing.T, session string, slot schedule.TimeSlot) *Appointment {
	t.Helper()
	appt, err := f.svc.PlaceHold(context.Background(), HoldRequest{
		DoctorID:  f.doctor.ID,
		SessionID: session,
		SlotID:    slot.ID,
		Start:     slot.Start,
		End:       slot.End,
	})
	require.NoError(t, err)
	return appt
}

func TestGetAvailabilityMondaySlots(t *testing.T) {
	f := newFixture(t)

	slots := f.slots(t)
	require.Len(t, slots, 6)
	assert.Equal(t, time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2025, time.June, 2, 11, 30, 0, 0, time.UTC), slots[5].Start)
	for _, s := range slots {
		assert.Equal(t, 1, s.CapacityRemaining)
	}
}

func TestGetAvailabilityNoTemplate(t *testing.T) {
	f := newFixture(t)

	stranger := Doctor{ID: uuid.New(), Name: "Dr. New Hire", Timezone: "UTC"}
	f.repo.AddDoctor(stranger)

	avail, err := f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: stranger.ID,
		From:     f.monday,
		To:       f.monday.AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	require.Len(t, avail.Days, 3)
	for _, d := range avail.Days {
		assert.Equal(t, schedule.DayUnavailable, d.Status)
		assert.Empty(t, d.Slots)
	}
	assert.Equal(t, schedule.SummaryNoSchedule, avail.Summary.Status)
}

func TestGetAvailabilityUnknownDoctor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: uuid.New(),
		From:     f.monday,
		To:       f.monday,
	})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestGetAvailabilityRejectsBadRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: f.doctor.ID,
		From:     f.monday,
		To:       f.monday.AddDate(0, 0, -1),
	})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: f.doctor.ID,
		From:     f.monday,
		To:       f.monday.AddDate(1, 0, 0),
	})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPlaceHoldRemovesSlot(t *testing.T) {
	f := newFixture(t)

	before := f.slots(t)
	target := before[0]

	appt := f.holdSlot(t, "session-a", target)
	assert.Equal(t, StatusHeld, appt.Status)
	assert.Equal(t, 1, appt.Version)
	require.NotNil(t, appt.HoldExpiresAt)
	assert.Equal(t, f.clk.Now().Add(90*time.Second), *appt.HoldExpiresAt)
	assert.Nil(t, appt.PatientID)

	after := f.slots(t)
	assert.Len(t, after, len(before)-1)
	for _, s := range after {
		assert.NotEqual(t, target.ID, s.ID)
	}
}

func TestPlaceHoldSecondSessionRejected(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	f.holdSlot(t, "session-a", target)

	_, err := f.svc.PlaceHold(context.Background(), HoldRequest{
		DoctorID:  f.doctor.ID,
		SessionID: "session-b",
		SlotID:    target.ID,
		Start:     target.Start,
		End:       target.End,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestPlaceHoldRequiresSession(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	_, err := f.svc.PlaceHold(context.Background(), HoldRequest{
		DoctorID: f.doctor.ID,
		SlotID:   target.ID,
		Start:    target.Start,
		End:      target.End,
	})
	assert.ErrorIs(t, err, ErrMissingSession)
}

func TestPlaceHoldStaleSlotRejected(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	_, err := f.svc.PlaceHold(context.Background(), HoldRequest{
		DoctorID:  f.doctor.ID,
		SessionID: "session-a",
		SlotID:    uuid.New(), // not a slot the pipeline emits
		Start:     target.Start,
		End:       target.End,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestPlaceHoldConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]

	const contenders = 16
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceHold(context.Background(), HoldRequest{
				DoctorID:  f.doctor.ID,
				SessionID: uuid.NewString(),
				SlotID:    target.ID,
				Start:     target.Start,
				End:       target.End,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotTaken)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestPlaceHoldSupersedesSessionHold(t *testing.T) {
	f := newFixture(t)

	slots := f.slots(t)
	first, second := slots[0], slots[1]

	old := f.holdSlot(t, "session-a", first)
	f.holdSlot(t, "session-a", second)

	// The first hold was released, so its slot is bookable again.
	current := f.slots(t)
	ids := make(map[uuid.UUID]bool, len(current))
	for _, s := range current {
		ids[s.ID] = true
	}
	assert.True(t, ids[first.ID])
	assert.False(t, ids[second.ID])

	_, err := f.svc.GetAppointment(context.Background(), old.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestReleaseHoldIdempotent(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	appt := f.holdSlot(t, "session-a", target)

	require.NoError(t, f.svc.ReleaseHold(context.Background(), appt.ID))
	require.NoError(t, f.svc.ReleaseHold(context.Background(), appt.ID))

	assert.Len(t, f.slots(t), 6)
}

func TestConfirmBooking(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	hold := f.holdSlot(t, "session-a", target)

	booked, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, booked.Status)
	assert.Equal(t, hold.Version+1, booked.Version)
	require.NotNil(t, booked.PatientID)
	assert.Equal(t, f.patient.ID, *booked.PatientID)
	assert.Nil(t, booked.HoldExpiresAt)

	// Still occupied after booking.
	assert.Len(t, f.slots(t), 5)
}

func TestConfirmBookingUnknownPatient(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	hold := f.holdSlot(t, "session-a", target)

	_, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version, uuid.New())
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestConfirmBookingVersionConflict(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	hold := f.holdSlot(t, "session-a", target)

	_, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version+1, f.patient.ID)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestConfirmBookingExpiredHold(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	hold := f.holdSlot(t, "session-a", target)

	f.clk.Advance(2 * time.Minute)

	_, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version, f.patient.ID)
	assert.ErrorIs(t, err, ErrHoldExpired)

	// The expired hold was dropped eagerly, so the slot is free again.
	assert.Len(t, f.slots(t), 6)
}

func TestConfirmBookingMissingHold(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ConfirmBooking(context.Background(), uuid.New(), 1, f.patient.ID)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestExpireHolds(t *testing.T) {
	f := newFixture(t)

	slots := f.slots(t)
	f.holdSlot(t, "session-a", slots[0])
	f.holdSlot(t, "session-b", slots[1])
	assert.Len(t, f.slots(t), 4)

	f.clk.Advance(2 * time.Minute)

	n, err := f.svc.ExpireHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, f.slots(t), 6)

	// Sweep again: nothing left to expire.
	n, err = f.svc.ExpireHolds(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	expired := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventHoldExpired {
			expired++
		}
	}
	assert.Equal(t, 2, expired)
}

func TestExpireHoldsLeavesLiveHolds(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	f.holdSlot(t, "session-a", target)

	f.clk.Advance(30 * time.Second)

	n, err := f.svc.ExpireHolds(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.slots(t), 5)
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	hold := f.holdSlot(t, "session-a", target)
	booked, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version, f.patient.ID)
	require.NoError(t, err)

	checkedIn, err := f.svc.Transition(context.Background(), booked.ID, StatusCheckedIn)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, checkedIn.Status)
	assert.Equal(t, booked.Version+1, checkedIn.Version)

	completed, err := f.svc.Transition(context.Background(), booked.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
}

func TestTransitionInvalid(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	hold := f.holdSlot(t, "session-a", target)
	booked, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version, f.patient.ID)
	require.NoError(t, err)

	// booked cannot jump straight to completed.
	_, err = f.svc.Transition(context.Background(), booked.ID, StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Holds are not transitioned through this path at all.
	target2 := f.slots(t)[0]
	hold2 := f.holdSlot(t, "session-b", target2)
	_, err = f.svc.Transition(context.Background(), hold2.ID, StatusBooked)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)

	target := f.slots(t)[0]
	hold := f.holdSlot(t, "session-a", target)
	booked, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version, f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, f.slots(t), 5)

	cancelled, err := f.svc.Transition(context.Background(), booked.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	assert.Len(t, f.slots(t), 6)
}

func TestListPatientAppointments(t *testing.T) {
	f := newFixture(t)

	slots := f.slots(t)
	for _, s := range slots[:3] {
		hold := f.holdSlot(t, uuid.NewString(), s)
		_, err := f.svc.ConfirmBooking(context.Background(), hold.ID, hold.Version, f.patient.ID)
		require.NoError(t, err)
	}

	all, err := f.svc.ListPatientAppointments(context.Background(), f.patient.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Most recent start first.
	assert.True(t, all[0].StartTime.After(all[1].StartTime))

	page, err := f.svc.ListPatientAppointments(context.Background(), f.patient.ID, 2, 1)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestGetAvailabilityDoctorTimezoneAnchoring(t *testing.T) {
	f := newFixtureInZone(t, "America/New_York")

	slots := f.slots(t)
	require.Len(t, slots, 6)
	// 09:00 Eastern on 2025-06-02 is 13:00 UTC.
	assert.True(t, slots[0].Start.Equal(time.Date(2025, time.June, 2, 13, 0, 0, 0, time.UTC)))
	assert.True(t, slots[5].Start.Equal(time.Date(2025, time.June, 2, 15, 30, 0, 0, time.UTC)))
}

func TestGetAvailabilityHolidayInDoctorTimezone(t *testing.T) {
	f := newFixtureInZone(t, "America/New_York")

	f.repo.AddHoliday(schedule.Holiday{
		ID:            uuid.New(),
		Date:          f.monday, // UTC midnight, previous local day in Eastern time
		Name:          "Founders Day",
		BlockBookings: true,
	})

	avail, err := f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: f.doctor.ID,
		From:     f.monday,
		To:       f.monday,
	})
	require.NoError(t, err)
	require.Len(t, avail.Days, 1)
	assert.Equal(t, schedule.DayUnavailable, avail.Days[0].Status)
	assert.Empty(t, avail.Days[0].Slots)
}

func TestGetAvailabilityBlockExceptionInDoctorTimezone(t *testing.T) {
	f := newFixtureInZone(t, "America/New_York")

	start, err := schedule.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := schedule.ParseTimeOfDay("12:00")
	require.NoError(t, err)

	f.repo.AddException(schedule.ScheduleException{
		ID:       uuid.New(),
		DoctorID: f.doctor.ID,
		Date:     f.monday,
		Type:     schedule.ExceptionBlock,
		Start:    start,
		End:      end,
	})

	avail, err := f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: f.doctor.ID,
		From:     f.monday,
		To:       f.monday,
	})
	require.NoError(t, err)
	require.Len(t, avail.Days, 1)
	assert.Equal(t, schedule.DayUnavailable, avail.Days[0].Status)
	assert.Empty(t, avail.Days[0].Slots)
}

func TestAvailabilityAfterLeave(t *testing.T) {
	f := newFixture(t)

	f.repo.AddLeave(schedule.Leave{
		ID:       uuid.New(),
		DoctorID: f.doctor.ID,
		Start:    f.monday,
		End:      f.monday.AddDate(0, 0, 1),
		Type:     schedule.LeaveFullDay,
		Reason:   "conference",
		Status:   schedule.LeaveActive,
	})

	avail, err := f.svc.GetAvailability(context.Background(), AvailabilityRequest{
		DoctorID: f.doctor.ID,
		From:     f.monday,
		To:       f.monday,
	})
	require.NoError(t, err)
	require.Len(t, avail.Days, 1)
	assert.Equal(t, schedule.DayLeave, avail.Days[0].Status)
	assert.Empty(t, avail.Days[0].Slots)
	require.NotNil(t, avail.Days[0].Leave)
	assert.Equal(t, "conference", avail.Days[0].Leave.Reason)
}
