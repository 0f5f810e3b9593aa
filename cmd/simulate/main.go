package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/scheduling-engine/internal/config"
	"github.com/clinicore/scheduling-engine/internal/db"
)

// The simulator drives the public API the way a waiting room full of
// browsers would: fetch availability, race for a slot, sometimes book
// the hold, sometimes abandon it and let the TTL reclaim it.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	HoldRatio    float64
	BookRatio    float64
	ReleaseRatio float64
	PatientLimit int
	DoctorLimit  int
	PostgresDSN  string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID

	mu    sync.RWMutex
	holds []heldSlot
}

type heldSlot struct {
	ID      uuid.UUID
	Version int
}

func (dp *DataPool) AddHold(id uuid.UUID, version int) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.holds = append(dp.holds, heldSlot{ID: id, Version: version})
}

func (dp *DataPool) TakeRandomHold(rng *rand.Rand) (heldSlot, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.holds) == 0 {
		return heldSlot{}, false
	}
	idx := rng.Intn(len(dp.holds))
	h := dp.holds[idx]
	dp.holds = append(dp.holds[:idx], dp.holds[idx+1:]...)
	return h, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Availability OperationMetrics
	Hold         OperationMetrics
	Book         OperationMetrics
	Release      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d hold=%.2f book=%.2f release=%.2f",
		cfg.Duration, cfg.Workers, cfg.HoldRatio, cfg.BookRatio, cfg.ReleaseRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		HoldRatio:    getFloat("SIM_HOLD_RATIO", 0.5),
		BookRatio:    getFloat("SIM_BOOK_RATIO", 0.3),
		ReleaseRatio: getFloat("SIM_RELEASE_RATIO", 0.2),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 100),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.HoldRatio + cfg.BookRatio + cfg.ReleaseRatio
	if total > 0 {
		cfg.HoldRatio /= total
		cfg.BookRatio /= total
		cfg.ReleaseRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM doctors LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.HoldRatio:
				s.doHold(ctx, rng)
			case r < s.config.HoldRatio+s.config.BookRatio:
				s.doBook(ctx, rng)
			default:
				s.doRelease(ctx, rng)
			}
		}
	}
}

type slotRef struct {
	ID    uuid.UUID `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// doHold fetches live availability and tries to hold one of the first
// few slots, concentrating contention the way patients racing for the
// earliest opening do.
func (s *Simulator) doHold(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	slot, ok := s.fetchSlot(ctx, rng, doctorID)
	if !ok {
		return
	}

	start := time.Now()

	reqBody := map[string]any{
		"doctor_id":  doctorID.String(),
		"session_id": uuid.NewString(),
		"slot_id":    slot.ID.String(),
		"start":      slot.Start,
		"end":        slot.End,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/holds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var holdResp struct {
				ID      uuid.UUID `json:"id"`
				Version int       `json:"version"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(bodyBytes, &holdResp) == nil && holdResp.ID != uuid.Nil {
				s.pool.AddHold(holdResp.ID, holdResp.Version)
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Hold.Record(latency, success, conflict)
}

func (s *Simulator) fetchSlot(ctx context.Context, rng *rand.Rand, doctorID uuid.UUID) (slotRef, bool) {
	start := time.Now()

	from := time.Now().UTC()
	to := from.AddDate(0, 0, 13)
	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/doctors/%s/availability?from=%s&to=%s",
			s.config.APIBaseURL, doctorID.String(), from.Format("2006-01-02"), to.Format("2006-01-02")), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Availability.Record(latency, false, false)
		return slotRef{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.Availability.Record(latency, false, false)
		return slotRef{}, false
	}
	s.metrics.Availability.Record(latency, true, false)

	var availResp struct {
		Days []struct {
			Slots []slotRef `json:"slots"`
		} `json:"days"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&availResp); err != nil {
		return slotRef{}, false
	}

	var slots []slotRef
	for _, d := range availResp.Days {
		slots = append(slots, d.Slots...)
	}
	if len(slots) == 0 {
		return slotRef{}, false
	}

	// Bias toward the earliest openings.
	limit := 5
	if len(slots) < limit {
		limit = len(slots)
	}
	return slots[rng.Intn(limit)], true
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	hold, ok := s.pool.TakeRandomHold(rng)
	if !ok {
		return
	}
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()

	reqBody := map[string]any{
		"patient_id": patientID.String(),
		"version":    hold.Version,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/holds/%s/book", s.config.APIBaseURL, hold.ID.String()), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			success = true
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Book.Record(latency, success, conflict)
}

func (s *Simulator) doRelease(ctx context.Context, rng *rand.Rand) {
	hold, ok := s.pool.TakeRandomHold(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "DELETE",
		fmt.Sprintf("%s/holds/%s", s.config.APIBaseURL, hold.ID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusNoContent
	}

	s.metrics.Release.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Hold", &s.metrics.Hold)
	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Release", &s.metrics.Release)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errorCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errorCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errorCount, float64(errorCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
