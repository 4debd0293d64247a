package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/dental-agenda/internal/api"
	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/config"
	"github.com/hackgods/dental-agenda/internal/db"
	"github.com/hackgods/dental-agenda/internal/logging"
)

// SimConfig drives a burst of concurrent bookings against a running
// api-server, all aimed at the same day so that most of them collide.
type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ChangeRatio  float64
	ReadRatio    float64
	PatientLimit int
	Date         time.Time
	PostgresDSN  string
}

type DataPool struct {
	Patients     []int64
	mu           sync.RWMutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

// OperationMetrics splits outcomes the way the agenda reports them:
// accepted, refused by a rule (422), lost a race or transition (409), other.
type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Rejected, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	return sum / time.Duration(len(latencies)),
		latencies[len(latencies)*50/100],
		latencies[min(len(latencies)*95/100, len(latencies)-1)],
		latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Change  OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.Setup(baseCfg, "simulate")

	cfg, err := loadConfig(baseCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Str("date", cfg.Date.Format(time.DateOnly)).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), 30*time.Second)
	defer cancel()

	pgPool, err := db.Connect(ctx, cfg.PostgresDSN, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	patients, err := appointment.NewPgRepository(pgPool).ListPatientIDs(ctx, cfg.PatientLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load patients")
	}
	if len(patients) == 0 {
		logger.Fatal().Msg("no patients loaded, run dentalctl seed first")
	}
	logger.Info().Int("patients", len(patients)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{Patients: patients},
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	if baseCfg.ChairCapacity > 1 {
		return
	}
	overlaps, err := sim.CheckOverlaps(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("overlap check")
	}
	if overlaps > 0 {
		logger.Error().Int("overlaps", overlaps).Msg("active appointments overlap")
		os.Exit(1)
	}
	logger.Info().Msg("no overlapping active appointments")
}

func loadConfig(base config.Config) (SimConfig, error) {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		ChangeRatio:  getFloat("SIM_CHANGE_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		PostgresDSN:  base.PostgresDSN,
	}

	if raw := os.Getenv("SIM_DATE"); raw != "" {
		d, err := appointment.ParseDate(raw)
		if err != nil {
			return cfg, err
		}
		cfg.Date = d
	} else {
		cfg.Date = nextWorkingDay(time.Now().In(base.Location))
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ChangeRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ChangeRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	}
	return cfg, nil
}

func nextWorkingDay(now time.Time) time.Time {
	d := appointment.CivilDate(now).AddDate(0, 0, 1)
	if d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ChangeRatio:
			s.doChange(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	// quarter-hour starts between 08:00 and 17:45, 15 to 60 minutes long
	start := appointment.TimeOfDayFromMinutes(8*60 + 15*rng.Intn(40))
	body := api.CreateAppointmentRequest{
		PatientID:       s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		Date:            s.config.Date.Format(time.DateOnly),
		Time:            start.String(),
		DurationMinutes: 15 * (1 + rng.Intn(4)),
		Reason:          "Simulación",
	}

	var created api.AppointmentResponse
	status, latency := s.call(ctx, http.MethodPost, "/appointments", body, &created)
	if status == 0 {
		return
	}
	if status == http.StatusCreated {
		s.pool.AddAppointment(created.ID)
	}
	s.metrics.Booking.Record(latency, status)
}

// doChange moves a random appointment forward in its lifecycle or cancels it.
func (s *Simulator) doChange(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	method, path := http.MethodPost, fmt.Sprintf("/appointments/%d/confirm", id)
	if rng.Intn(3) == 0 {
		method, path = http.MethodDelete, fmt.Sprintf("/appointments/%d", id)
	}

	status, latency := s.call(ctx, method, path, nil, nil)
	if status == 0 {
		return
	}
	s.metrics.Change.Record(latency, status)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	path := "/appointments?date_from=" + s.config.Date.Format(time.DateOnly)
	if id, ok := s.pool.GetRandomAppointment(rng); ok && rng.Intn(2) == 0 {
		path = "/appointments/" + strconv.FormatInt(id, 10)
	}

	status, latency := s.call(ctx, http.MethodGet, path, nil, nil)
	if status == 0 {
		return
	}
	s.metrics.Read.Record(latency, status)
}

// call returns status 0 when the simulation deadline cut the request short.
func (s *Simulator) call(ctx context.Context, method, path string, in, out any) (int, time.Duration) {
	var body bytes.Buffer
	if in != nil {
		_ = json.NewEncoder(&body).Encode(in)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &body)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0
		}
		return -1, latency
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency
}

// CheckOverlaps lists the simulated day and counts pairs of active
// appointments whose intervals intersect.
func (s *Simulator) CheckOverlaps(ctx context.Context) (int, error) {
	date := s.config.Date.Format(time.DateOnly)

	var active []api.AppointmentResponse
	for offset := 0; ; offset += 100 {
		var page api.AppointmentListResponse
		path := fmt.Sprintf("/appointments?date_from=%s&date_to=%s&limit=100&offset=%d", date, date, offset)
		status, _ := s.call(ctx, http.MethodGet, path, nil, &page)
		if status != http.StatusOK {
			return 0, fmt.Errorf("list appointments: HTTP %d", status)
		}
		for _, a := range page.Items {
			if appointment.AppointmentStatus(a.Status).IsActive() {
				active = append(active, a)
			}
		}
		if offset+len(page.Items) >= page.Total || len(page.Items) == 0 {
			break
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].Time.Before(active[j].Time) })

	overlaps := 0
	for i := range active {
		for j := i + 1; j < len(active) && active[j].Time.Before(active[i].EndTime); j++ {
			overlaps++
			log.Warn().
				Int64("a", active[i].ID).
				Int64("b", active[j].ID).
				Str("a_range", active[i].Time.String()+"-"+active[i].EndTime.String()).
				Str("b_range", active[j].Time.String()+"-"+active[j].EndTime.String()).
				Msg("overlap")
		}
	}
	return overlaps, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Date: %s\n", s.config.Date.Format(time.DateOnly))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm/Cancel", &s.metrics.Change)
	printOperationReport("Read", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", om.Success, pct(om.Success))
	if n := atomic.LoadInt64(&om.Rejected); n > 0 {
		fmt.Printf("  Rejected by rules: %d (%.1f%%)\n", n, pct(n))
	}
	if n := atomic.LoadInt64(&om.Conflict); n > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", n, pct(n))
	}
	if n := atomic.LoadInt64(&om.Error); n > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", n, pct(n))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

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
