package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/scheduling-engine/internal/db"
	"github.com/clinicore/scheduling-engine/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	locationIDs, err := seedLocations(context.Background(), pool, 5)
	if err != nil {
		log.Fatalf("seed locations: %v", err)
	}
	doctorIDs, err := seedDoctors(context.Background(), pool, 100)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedTemplates(context.Background(), pool, doctorIDs, locationIDs); err != nil {
		log.Fatalf("seed templates: %v", err)
	}
	if err := seedHolidays(context.Background(), pool); err != nil {
		log.Fatalf("seed holidays: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedLocations(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d locations", count)

	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.City() + " Clinic"

		if _, err := tx.Exec(ctx, `
			INSERT INTO locations (id, name)
			VALUES ($1, $2)
		`, id, name); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("locations seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	timezones := []string{
		"America/New_York",
		"America/Chicago",
		"America/Los_Angeles",
		"Europe/London",
		"Asia/Kolkata",
	}

	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		tz := timezones[gofakeit.Number(0, len(timezones)-1)]
		slotMins := []int{15, 20, 30, 45}[gofakeit.Number(0, 3)]
		bufferMins := []int{0, 5, 10}[gofakeit.Number(0, 2)]

		if _, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, timezone, default_slot_minutes, default_buffer_minutes, min_lead_minutes, max_future_days, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		`, id, name, spec, tz, slotMins, bufferMins, 60, 60); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedTemplates(ctx context.Context, pool *pgxpool.Pool, doctorIDs, locationIDs []uuid.UUID) error {
	log.Printf("seeding templates for %d doctors", len(doctorIDs))

	morning, _ := schedule.ParseTimeOfDay("09:00")
	noon, _ := schedule.ParseTimeOfDay("13:00")
	afternoon, _ := schedule.ParseTimeOfDay("14:00")
	evening, _ := schedule.ParseTimeOfDay("18:00")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		locID := locationIDs[gofakeit.Number(0, len(locationIDs)-1)]

		days := make([]schedule.DaySchedule, 0, 5)
		for wd := time.Monday; wd <= time.Friday; wd++ {
			blocks := []schedule.ScheduleBlock{
				{Start: morning, End: noon, Mode: schedule.ModeInPerson, LocationID: &locID, Capacity: 1},
			}
			// Most doctors also take afternoon telehealth sessions.
			if gofakeit.Number(0, 9) < 7 {
				blocks = append(blocks, schedule.ScheduleBlock{
					Start: afternoon, End: evening, Mode: schedule.ModeTelehealth, Capacity: 1,
				})
			}
			days = append(days, schedule.DaySchedule{Weekday: wd, Blocks: blocks})
		}

		payload, err := json.Marshal(days)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO schedule_templates (id, doctor_id, version, effective_from, days, created_at)
			VALUES ($1, $2, 1, $3, $4, now())
		`, uuid.New(), doctorID, time.Now().AddDate(0, -1, 0), payload); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("templates seeded")
	return nil
}

func seedHolidays(ctx context.Context, pool *pgxpool.Pool) error {
	holidays := []struct {
		date time.Time
		name string
	}{
		{time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), "New Year's Day"},
		{time.Date(2026, time.July, 4, 0, 0, 0, 0, time.UTC), "Independence Day"},
		{time.Date(2026, time.December, 25, 0, 0, 0, 0, time.UTC), "Christmas Day"},
	}

	for _, h := range holidays {
		if _, err := pool.Exec(ctx, `
			INSERT INTO holidays (id, date, name, block_bookings, location_id)
			VALUES ($1, $2, $3, true, NULL)
		`, uuid.New(), h.date, h.name); err != nil {
			return err
		}
	}

	log.Println("holidays seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
