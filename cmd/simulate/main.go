package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
)

const scheduledLayout = "2006-01-02T15:04"

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	WindowLimit  int
	HotSlots     int
	PostgresDSN  string
	Location     *time.Location
}

// target is one bookable (doctor, clinic, time) triple.
type target struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	At       time.Time
}

type booked struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Targets  []target

	mu           sync.Mutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

// TakeRandomAppointment removes and returns a random booked appointment.
func (dp *DataPool) TakeRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	n := len(dp.appointments)
	if n == 0 {
		return booked{}, false
	}
	idx := rng.Intn(n)
	b := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[n-1]
	dp.appointments = dp.appointments[:n-1]
	return b, true
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
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	Booking        OperationMetrics
	Cancel         OperationMetrics
	Availability   OperationMetrics
	ListByPatient  OperationMetrics
	BookingsByCode sync.Map // error code -> *int64
}

func (m *Metrics) countCode(code string) {
	v, _ := m.BookingsByCode.LoadOrStore(code, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	base, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(base.Log)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig(base)
	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid simulator config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
		zap.Int("hot_slots", cfg.HotSlots),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	log.Info("data loaded", zap.Int("patients", len(dataPool.Patients)), zap.Int("slots", len(dataPool.Targets)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()

	dupes, err := verifyNoDoubleBooking(context.Background(), pgPool)
	if err != nil {
		log.Fatal("verification query failed", zap.Error(err))
	}
	if dupes > 0 {
		log.Fatal("double booking detected", zap.Int("slots", dupes))
	}
	log.Info("verified: every slot holds at most one active appointment")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{PostgresDSN: base.PostgresDSN, Location: base.ClinicLocation}
	flag.StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "api-server base URL")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to generate load")
	flag.IntVar(&cfg.Workers, "workers", 10, "concurrent clients")
	flag.Float64Var(&cfg.BookingRatio, "booking", 0.5, "share of booking requests")
	flag.Float64Var(&cfg.CancelRatio, "cancel", 0.1, "share of cancellations")
	flag.Float64Var(&cfg.ReadRatio, "read", 0.4, "share of availability and listing reads")
	flag.IntVar(&cfg.PatientLimit, "patients", 4000, "patients to load")
	flag.IntVar(&cfg.WindowLimit, "windows", 200, "upcoming windows to derive slots from")
	flag.IntVar(&cfg.HotSlots, "hot-slots", 50, "distinct slots the workers contend for")
	flag.Parse()

	if total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio; total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return errors.New("-workers must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("-duration must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return errors.New("-hot-slots must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT dc.doctor_id, dc.clinic_id, w.date, w.start_time, w.end_time, w.slot_duration_minutes
		FROM availability_windows w
		JOIN doctor_clinics dc ON dc.id = w.doctor_clinic_id
		WHERE w.is_available AND w.date > current_date
		ORDER BY w.date, w.start_time
		LIMIT $1
	`, cfg.WindowLimit)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	now := time.Now().In(cfg.Location)
	for rows.Next() {
		var (
			doctorID, clinicID uuid.UUID
			date               time.Time
			start, end         pgtype.Time
			minutes            int
		)
		if err := rows.Scan(&doctorID, &clinicID, &date, &start, &end, &minutes); err != nil {
			rows.Close()
			return nil, err
		}
		w := appointment.AvailabilityWindow{
			Date:         time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, cfg.Location),
			Start:        time.Duration(start.Microseconds) * time.Microsecond,
			End:          time.Duration(end.Microseconds) * time.Microsecond,
			SlotDuration: time.Duration(minutes) * time.Minute,
			Available:    true,
		}
		for at := range appointment.Slots(w, now) {
			dataPool.Targets = append(dataPool.Targets, target{DoctorID: doctorID, ClinicID: clinicID, At: at})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded")
	}
	if len(dataPool.Targets) == 0 {
		return nil, errors.New("no upcoming slots loaded")
	}

	// Keep a small hot set so concurrent bookers collide.
	rand.Shuffle(len(dataPool.Targets), func(i, j int) {
		dataPool.Targets[i], dataPool.Targets[j] = dataPool.Targets[j], dataPool.Targets[i]
	})
	if len(dataPool.Targets) > cfg.HotSlots {
		dataPool.Targets = dataPool.Targets[:cfg.HotSlots]
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var g errgroup.Group
	for i := 0; i < s.config.Workers; i++ {
		g.Go(func() error {
			s.worker(ctx, i)
			return nil
		})
	}

	_ = g.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doAvailability(ctx, rng)
		default:
			s.doListByPatient(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]string{
		"doctor_id":      t.DoctorID.String(),
		"clinic_id":      t.ClinicID.String(),
		"patient_id":     patientID.String(),
		"scheduled_time": t.At.In(s.config.Location).Format(scheduledLayout),
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Booking.Record(latency, false, false)
		}
		return
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		var appt struct {
			AppointmentID uuid.UUID `json:"appointment_id"`
		}
		if json.Unmarshal(payload, &appt) == nil && appt.AppointmentID != uuid.Nil {
			s.pool.AddAppointment(booked{ID: appt.AppointmentID, PatientID: patientID})
		}
		s.metrics.Booking.Record(latency, true, false)
	case http.StatusConflict:
		s.metrics.countCode(errorCode(payload))
		s.metrics.Booking.Record(latency, false, true)
	default:
		s.metrics.countCode(errorCode(payload))
		s.metrics.Booking.Record(latency, false, false)
	}
}

// doCancel frees a slot this run booked so it can be contested again.
func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeRandomAppointment(rng)
	if !ok {
		return
	}
	body, _ := json.Marshal(map[string]string{"patient_id": b.PatientID.String()})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, b.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	} else if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/availability?doctor_id=%s&clinic_id=%s&date=%s",
			s.config.APIBaseURL, t.DoctorID, t.ClinicID, t.At.In(s.config.Location).Format(time.DateOnly)), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	} else if ctx.Err() != nil {
		return
	}
	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/patients/%s/appointments?limit=20&offset=0", s.config.APIBaseURL, patientID), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	} else if ctx.Err() != nil {
		return
	}
	s.metrics.ListByPatient.Record(latency, success, false)
}

func errorCode(payload []byte) string {
	var body struct {
		Code string `json:"code"`
	}
	if json.Unmarshal(payload, &body) != nil || body.Code == "" {
		return "unknown"
	}
	return body.Code
}

// verifyNoDoubleBooking counts slots holding more than one active appointment.
func verifyNoDoubleBooking(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1
			FROM appointments
			WHERE status IN ('booked', 'rescheduled')
			GROUP BY doctor_id, clinic_id, scheduled_time
			HAVING count(*) > 1
		) dupes
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contested slots: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)

	var codes []string
	s.metrics.BookingsByCode.Range(func(k, v any) bool {
		codes = append(codes, fmt.Sprintf("%s=%d", k, atomic.LoadInt64(v.(*int64))))
		return true
	})
	if len(codes) > 0 {
		sort.Strings(codes)
		fmt.Printf("Rejected bookings by code: %s\n\n", strings.Join(codes, " "))
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
