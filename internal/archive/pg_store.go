package archive

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// ArchiveElapsed copies and deletes in a single statement. Rows locked by an
// in-flight cancel or reschedule are skipped until the next run.
func (s *PgStore) ArchiveElapsed(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		WITH moved AS (
			DELETE FROM appointments
			WHERE id IN (
				SELECT id FROM appointments
				WHERE scheduled_time < $1 AND status <> 'cancelled'
				ORDER BY scheduled_time
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, doctor_id, clinic_id, patient_id, scheduled_time, status, notes, created_at
		)
		INSERT INTO past_appointments (id, doctor_id, clinic_id, patient_id, scheduled_time, status, notes, created_at, archived_at)
		SELECT id, doctor_id, clinic_id, patient_id, scheduled_time,
		       CASE WHEN status IN ('booked', 'rescheduled') THEN 'completed' ELSE status END,
		       notes, created_at, now()
		FROM moved
		ON CONFLICT (id) DO NOTHING
	`, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
