package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

var ErrPartiesNotFound = errors.New("appointment parties not found")

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) ResolveParties(ctx context.Context, doctorID, patientID, clinicID uuid.UUID) (*Parties, error) {
	var p Parties
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT du.id, du.email, du.first_name, du.last_name,
		       pu.id, pu.email, pu.first_name, pu.last_name,
		       c.name
		FROM doctors d
		JOIN users du ON du.id = d.user_id
		CROSS JOIN patients p
		JOIN users pu ON pu.id = p.user_id
		CROSS JOIN clinics c
		WHERE d.id = $1 AND p.id = $2 AND c.id = $3
	`, doctorID, patientID, clinicID).Scan(
		&p.Doctor.UserID, &p.Doctor.Email, &p.Doctor.FirstName, &p.Doctor.LastName,
		&p.Patient.UserID, &p.Patient.Email, &p.Patient.FirstName, &p.Patient.LastName,
		&p.ClinicName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPartiesNotFound
		}
		return nil, fmt.Errorf("resolve parties: %w", err)
	}
	return &p, nil
}

func (s *PgStore) Record(ctx context.Context, notes []Notification, emails []EmailLog) error {
	return db.InTx(ctx, s.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)

		batch := &pgx.Batch{}
		for _, n := range notes {
			batch.Queue(`
				INSERT INTO notifications (id, user_id, notification_type, title, message, meta, appointment_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.Meta, n.AppointmentID, n.CreatedAt)
		}
		for _, e := range emails {
			batch.Queue(`
				INSERT INTO email_logs (id, recipient, subject, body, notification_type, status, appointment_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, e.ID, e.Recipient, e.Subject, e.Body, string(e.Type), e.Status, e.AppointmentID, e.CreatedAt)
		}

		// Close returns the first failed statement, if any
		return tx.SendBatch(ctx, batch).Close()
	})
}

const notificationCols = `id, user_id, notification_type, title, message, meta, is_read, appointment_id, created_at, read_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var typ string
	err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.Meta, &n.IsRead, &n.AppointmentID, &n.CreatedAt, &n.ReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n.Type = Type(typ)
	return &n, nil
}

func (s *PgStore) List(ctx context.Context, userID uuid.UUID, f Filter) ([]Notification, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT `+notificationCols+`
		FROM notifications
		WHERE user_id = $1
		  AND (NOT $2 OR NOT is_read)
		  AND ($3 = '' OR notification_type = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, userID, f.UnreadOnly, string(f.Type), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *PgStore) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (*Notification, error) {
	n, err := scanNotification(db.Conn(ctx, s.pool).QueryRow(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationCols,
		id, userID, at))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, err
}

func (s *PgStore) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE user_id = $1 AND NOT is_read
	`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *PgStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
