package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
)

const batchSize = 500

var specializations = []string{
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

type seedPlan struct {
	doctors    int
	clinics    int
	patients   int
	days       int
	perDoctor  int // clinics each doctor practices at
	slotMinute int
}

func main() {
	var plan seedPlan
	flag.IntVar(&plan.doctors, "doctors", 100, "doctors to create")
	flag.IntVar(&plan.clinics, "clinics", 20, "clinics to create")
	flag.IntVar(&plan.patients, "patients", 9000, "patients to create")
	flag.IntVar(&plan.days, "days", 14, "days of availability to open, starting tomorrow")
	flag.IntVar(&plan.perDoctor, "clinics-per-doctor", 2, "clinics each doctor is attached to")
	flag.IntVar(&plan.slotMinute, "slot-minutes", 30, "slot duration of seeded windows")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log, plan); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
	log.Info("seed complete")
}

func run(cfg config.Config, log *zap.Logger, plan seedPlan) error {
	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, 4)
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	_ = gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(ctx, log, pool, plan.doctors)
	if err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	clinicIDs, err := seedClinics(ctx, log, pool, plan.clinics)
	if err != nil {
		return fmt.Errorf("seed clinics: %w", err)
	}
	pairings, err := seedDoctorClinics(ctx, log, pool, doctorIDs, clinicIDs, plan.perDoctor)
	if err != nil {
		return fmt.Errorf("seed doctor clinics: %w", err)
	}
	if err := seedWindows(ctx, log, pool, pairings, cfg.ClinicLocation, plan.days, plan.slotMinute); err != nil {
		return fmt.Errorf("seed availability: %w", err)
	}
	if err := seedPatients(ctx, log, pool, plan.patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	return nil
}

// insertUser adds the users row backing a doctor or patient.
func insertUser(ctx context.Context, tx pgx.Tx, role string) (uuid.UUID, error) {
	id := uuid.New()
	p := gofakeit.Person()
	email := fmt.Sprintf("%s.%s@example.com", uuid.NewString()[:8], gofakeit.Username())
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, email, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5)
	`, id, email, p.FirstName, p.LastName, role)
	return id, err
}

func seedDoctors(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info("seeding doctors", zap.Int("count", count))

	ids := make([]uuid.UUID, 0, count)
	err := db.InTx(ctx, pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)
		for i := 0; i < count; i++ {
			userID, err := insertUser(ctx, tx, "doctor")
			if err != nil {
				return err
			}
			id := uuid.New()
			spec := specializations[gofakeit.Number(0, len(specializations)-1)]
			license := fmt.Sprintf("LIC-%s-%05d", gofakeit.LetterN(3), i)
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, user_id, specialization, license_number)
				VALUES ($1, $2, $3, $4)
			`, id, userID, spec, license); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func seedClinics(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info("seeding clinics", zap.Int("count", count))

	ids := make([]uuid.UUID, count)
	rows := make([][]any, count)
	for i := range rows {
		ids[i] = uuid.New()
		addr := gofakeit.Address()
		rows[i] = []any{ids[i], gofakeit.Company() + " Clinic", addr.Street + ", " + addr.City, gofakeit.Phone()}
	}
	_, err := pool.CopyFrom(ctx,
		pgx.Identifier{"clinics"},
		[]string{"id", "name", "address", "phone"},
		pgx.CopyFromRows(rows),
	)
	return ids, err
}

type pairing struct {
	id       uuid.UUID
	doctorID uuid.UUID
	clinicID uuid.UUID
}

func seedDoctorClinics(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, doctors, clinics []uuid.UUID, perDoctor int) ([]pairing, error) {
	if perDoctor > len(clinics) {
		perDoctor = len(clinics)
	}
	log.Info("attaching doctors to clinics", zap.Int("doctors", len(doctors)), zap.Int("per_doctor", perDoctor))

	var (
		out  []pairing
		rows [][]any
	)
	for _, d := range doctors {
		picked := make(map[int]bool, perDoctor)
		for len(picked) < perDoctor {
			picked[gofakeit.Number(0, len(clinics)-1)] = true
		}
		for idx := range picked {
			p := pairing{id: uuid.New(), doctorID: d, clinicID: clinics[idx]}
			fee := float64(gofakeit.Number(20, 150))
			out = append(out, p)
			rows = append(rows, []any{p.id, p.doctorID, p.clinicID, fee})
		}
	}
	_, err := pool.CopyFrom(ctx,
		pgx.Identifier{"doctor_clinics"},
		[]string{"id", "doctor_id", "clinic_id", "consultation_fee"},
		pgx.CopyFromRows(rows),
	)
	return out, err
}

// seedWindows opens a morning and an afternoon window per pairing for each
// upcoming day, skipping Sundays.
func seedWindows(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, pairings []pairing, loc *time.Location, days, slotMinutes int) error {
	log.Info("seeding availability", zap.Int("pairings", len(pairings)), zap.Int("days", days))

	today := time.Now().In(loc)
	shifts := [][2]time.Duration{{9 * time.Hour, 12 * time.Hour}, {14 * time.Hour, 17 * time.Hour}}

	var rows [][]any
	for _, p := range pairings {
		for d := 1; d <= days; d++ {
			day := time.Date(today.Year(), today.Month(), today.Day()+d, 0, 0, 0, 0, time.UTC)
			if day.Weekday() == time.Sunday {
				continue
			}
			for _, s := range shifts {
				if gofakeit.Number(0, 9) == 0 {
					continue
				}
				rows = append(rows, []any{uuid.New(), p.id, day, timeOfDay(s[0]), timeOfDay(s[1]), slotMinutes})
			}
		}
	}

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := insertWindows(ctx, pool, rows[start:end]); err != nil {
			return err
		}
		log.Debug("availability windows seeded", zap.Int("done", end), zap.Int("total", len(rows)))
	}
	log.Info("availability seeded", zap.Int("windows", len(rows)))
	return nil
}

func timeOfDay(d time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: d.Microseconds(), Valid: true}
}

func insertWindows(ctx context.Context, pool *pgxpool.Pool, rows [][]any) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO availability_windows (id, doctor_clinic_id, date, start_time, end_time, slot_duration_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT ON CONSTRAINT availability_windows_slot_uq DO NOTHING
		`, r...)
	}
	return pool.SendBatch(ctx, batch).Close()
}

func seedPatients(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := db.InTx(ctx, pool, func(ctx context.Context) error {
			tx := db.TxFromContext(ctx)
			for i := offset; i < end; i++ {
				userID, err := insertUser(ctx, tx, "patient")
				if err != nil {
					return err
				}
				dob := gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0))
				if _, err := tx.Exec(ctx, `
					INSERT INTO patients (id, user_id, date_of_birth, phone)
					VALUES ($1, $2, $3, $4)
				`, uuid.New(), userID, dob, gofakeit.Phone()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}
