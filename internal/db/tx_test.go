package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Fatalf("expected no tx, got %v", tx)
	}
	ctx := context.WithValue(context.Background(), txKey{}, "not a tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Fatalf("expected no tx for wrong value type, got %v", tx)
	}
}

func TestPgErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uq"}
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "appointments_patient_id_fkey"}

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"unique any constraint", IsUniqueViolation(unique, ""), true},
		{"unique named constraint", IsUniqueViolation(unique, "appointments_active_slot_uq"), true},
		{"unique other constraint", IsUniqueViolation(unique, "availability_windows_slot_uq"), false},
		{"unique wrapped", IsUniqueViolation(fmt.Errorf("insert: %w", unique), "appointments_active_slot_uq"), true},
		{"fk is not unique", IsUniqueViolation(fk, ""), false},
		{"fk named", IsForeignKeyViolation(fk, "appointments_patient_id_fkey"), true},
		{"plain error", IsForeignKeyViolation(errors.New("boom"), ""), false},
		{"nil error", IsExclusionViolation(nil, ""), false},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}
