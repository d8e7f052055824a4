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
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openvax/vaccine-appointment-scheduling/internal/config"
	"github.com/openvax/vaccine-appointment-scheduling/internal/db"
	"github.com/openvax/vaccine-appointment-scheduling/internal/reservation"
)

// Fires concurrent reservation attempts at a running api-server, then
// audits the database for oversell: stock must never go negative, no
// caregiver may be double-booked on a date, and a consumed slot must
// never coexist with its appointment.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Patients    int
	PostgresDSN string
}

type DataPool struct {
	Dates    []string // mm-dd-yyyy, dates with at least one open slot at start
	Vaccines []string
}

type Metrics struct {
	Total          int64
	Booked         int64
	NoAvailability int64
	OutOfStock     int64
	Conflict       int64
	Error          int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Booked, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) RecordOutcome(code string) {
	switch code {
	case "no_availability":
		atomic.AddInt64(&m.NoAvailability, 1)
	case "out_of_stock":
		atomic.AddInt64(&m.OutOfStock, 1)
	}
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

	log.Printf("config: duration=%s workers=%d patients=%d api=%s",
		cfg.Duration, cfg.Workers, cfg.Patients, cfg.APIBaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d open dates, %d vaccines", len(dataPool.Dates), len(dataPool.Vaccines))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	if err := audit(context.Background(), pgPool); err != nil {
		log.Fatalf("AUDIT FAILED: %v", err)
	}
	log.Println("audit passed: no oversell, no double-booking, no orphan slots")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		Patients:    getInt("SIM_PATIENTS", 200),
		PostgresDSN: baseCfg.PostgresDSN,
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT available_on FROM availabilities ORDER BY available_on
	`)
	if err != nil {
		return nil, fmt.Errorf("load dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dataPool.Dates = append(dataPool.Dates, d.Format(reservation.DateLayout))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT name FROM vaccines`)
	if err != nil {
		return nil, fmt.Errorf("load vaccines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		dataPool.Vaccines = append(dataPool.Vaccines, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Dates) == 0 {
		return nil, fmt.Errorf("no availability dates, run cmd/seed first")
	}
	if len(dataPool.Vaccines) == 0 {
		return nil, fmt.Errorf("no vaccines, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
			for ctx.Err() == nil {
				s.reserveOnce(ctx, rng)
			}
		}(i)
	}
	wg.Wait()
}

func (s *Simulator) reserveOnce(ctx context.Context, rng *rand.Rand) {
	patient := fmt.Sprintf("simpatient%d", rng.Intn(s.config.Patients))
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]
	vaccine := s.pool.Vaccines[rng.Intn(len(s.pool.Vaccines))]

	body, _ := json.Marshal(map[string]string{"date": date, "vaccine": vaccine})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBaseURL+"/reservations", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Username", patient)
	req.Header.Set("X-Auth-Role", "patient")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			atomic.AddInt64(&s.metrics.Total, 1)
			atomic.AddInt64(&s.metrics.Error, 1)
		}
		return
	}
	defer resp.Body.Close()

	s.metrics.Record(time.Since(start), resp.StatusCode)

	if resp.StatusCode == http.StatusConflict {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) == nil {
			s.metrics.RecordOutcome(e.Error)
		}
	}
}

func (s *Simulator) PrintReport() {
	m := &s.metrics

	fmt.Println()
	fmt.Println("=== reservation simulation report ===")
	fmt.Printf("total=%d booked=%d conflicts=%d (no_availability=%d out_of_stock=%d) errors=%d\n",
		m.Total, m.Booked, m.Conflict, m.NoAvailability, m.OutOfStock, m.Error)

	m.mu.Lock()
	latencies := make([]time.Duration, len(m.latencies))
	copy(latencies, m.latencies)
	m.mu.Unlock()

	if len(latencies) == 0 {
		return
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg := sum / time.Duration(len(latencies))
	p50 := latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 := latencies[p95Idx]

	fmt.Printf("latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg, latencies[0], latencies[len(latencies)-1], p50, p95)
}

// audit checks the invariants the engine must hold regardless of load.
func audit(ctx context.Context, pool *pgxpool.Pool) error {
	var negative int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM vaccines WHERE doses < 0
	`).Scan(&negative); err != nil {
		return err
	}
	if negative > 0 {
		return fmt.Errorf("%d vaccines with negative stock", negative)
	}

	var doubleBooked int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT caregiver_username, appointment_date
			FROM appointments
			GROUP BY caregiver_username, appointment_date
			HAVING count(*) > 1
		) d
	`).Scan(&doubleBooked); err != nil {
		return err
	}
	if doubleBooked > 0 {
		return fmt.Errorf("%d caregivers double-booked on a date", doubleBooked)
	}

	var orphan int
	if err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN availabilities av
		  ON av.caregiver_username = a.caregiver_username
		 AND av.available_on = a.appointment_date
	`).Scan(&orphan); err != nil {
		return err
	}
	if orphan > 0 {
		return fmt.Errorf("%d appointments whose slot was never consumed", orphan)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
