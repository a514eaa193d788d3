package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWindowListSpan = 366 * 24 * time.Hour

// ListAvailability returns the windows of a pairing dated within [from, to].
func (s *Service) ListAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error) {
	from, to = s.dateIn(from), s.dateIn(to)
	if to.Before(from) {
		return nil, invalid("to must not be before from")
	}
	if to.Sub(from) > maxWindowListSpan {
		return nil, invalid("date range must not exceed one year")
	}

	dc, err := s.repo.GetDoctorClinic(ctx, doctorID, clinicID)
	if err != nil {
		return nil, fmt.Errorf("load doctor clinic: %w", err)
	}
	windows, err := s.repo.ListWindowsBetween(ctx, dc.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	return windows, nil
}

// CreateAvailability adds a window to a pairing.
func (s *Service) CreateAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, in WindowInput) (*AvailabilityWindow, error) {
	if err := validateWindow(in); err != nil {
		return nil, err
	}

	var created *AvailabilityWindow
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		dc, err := s.repo.GetDoctorClinic(ctx, doctorID, clinicID)
		if err != nil {
			return fmt.Errorf("load doctor clinic: %w", err)
		}
		if err := s.repo.LockDoctorClinic(ctx, dc.ID); err != nil {
			return fmt.Errorf("lock doctor clinic: %w", err)
		}

		w := &AvailabilityWindow{
			ID:             uuid.New(),
			DoctorClinicID: dc.ID,
			Date:           s.dateIn(in.Date),
			Start:          in.Start,
			End:            in.End,
			SlotDuration:   in.SlotDuration,
			Available:      in.Available,
		}
		if err := s.checkPlacement(ctx, dc, w); err != nil {
			return err
		}
		if err := s.repo.CreateWindow(ctx, w); err != nil {
			return err
		}
		created = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("availability window created",
		zap.Stringer("window_id", created.ID),
		zap.Stringer("doctor_clinic_id", created.DoctorClinicID),
		zap.Time("starts_at", created.StartsAt()),
	)
	return created, nil
}

// UpdateAvailability replaces the editable fields of a window. Rejected while
// appointments exist in either the old or the new range.
func (s *Service) UpdateAvailability(ctx context.Context, windowID uuid.UUID, in WindowInput) (*AvailabilityWindow, error) {
	if err := validateWindow(in); err != nil {
		return nil, err
	}

	var updated *AvailabilityWindow
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		old, dc, err := s.lockWindow(ctx, windowID)
		if err != nil {
			return err
		}
		if err := s.checkNoBookings(ctx, dc, *old); err != nil {
			return err
		}

		w := *old
		w.Date = s.dateIn(in.Date)
		w.Start = in.Start
		w.End = in.End
		w.SlotDuration = in.SlotDuration
		w.Available = in.Available

		if err := s.checkPlacement(ctx, dc, &w); err != nil {
			return err
		}
		if err := s.repo.UpdateWindow(ctx, &w); err != nil {
			return err
		}
		updated = &w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("availability window updated", zap.Stringer("window_id", updated.ID))
	return updated, nil
}

// DeleteAvailability removes a window that holds no appointments.
func (s *Service) DeleteAvailability(ctx context.Context, windowID uuid.UUID) error {
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		w, dc, err := s.lockWindow(ctx, windowID)
		if err != nil {
			return err
		}
		if err := s.checkNoBookings(ctx, dc, *w); err != nil {
			return err
		}
		return s.repo.DeleteWindow(ctx, w.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("availability window deleted", zap.Stringer("window_id", windowID))
	return nil
}

// lockWindow locks the owning pairing and then the window, in the same order as
// CreateAvailability and DetachDoctorClinic.
func (s *Service) lockWindow(ctx context.Context, windowID uuid.UUID) (*AvailabilityWindow, *DoctorClinic, error) {
	peek, err := s.repo.GetWindow(ctx, windowID)
	if err != nil {
		return nil, nil, fmt.Errorf("load availability window: %w", err)
	}
	if err := s.repo.LockDoctorClinic(ctx, peek.DoctorClinicID); err != nil {
		return nil, nil, fmt.Errorf("lock doctor clinic: %w", err)
	}
	w, err := s.repo.LockWindow(ctx, windowID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock availability window: %w", err)
	}
	dc, err := s.repo.GetDoctorClinicByID(ctx, w.DoctorClinicID)
	if err != nil {
		return nil, nil, fmt.Errorf("load doctor clinic: %w", err)
	}
	return w, dc, nil
}

// checkPlacement rejects w when it collides with another window of the pairing
// on the same date, or when its range already holds appointments.
func (s *Service) checkPlacement(ctx context.Context, dc *DoctorClinic, w *AvailabilityWindow) error {
	siblings, err := s.repo.ListWindows(ctx, dc.ID, w.Date)
	if err != nil {
		return fmt.Errorf("load availability windows: %w", err)
	}
	for _, other := range siblings {
		if other.ID == w.ID {
			continue
		}
		if other.Start == w.Start {
			return ErrWindowExists
		}
		if w.Start < other.End && other.Start < w.End {
			return ErrWindowOverlap
		}
	}
	return s.checkNoBookings(ctx, dc, *w)
}

func (s *Service) checkNoBookings(ctx context.Context, dc *DoctorClinic, w AvailabilityWindow) error {
	n, err := s.repo.CountNonCancelled(ctx, dc.DoctorID, dc.ClinicID, w.StartsAt(), w.EndsAt())
	if err != nil {
		return fmt.Errorf("count appointments in window: %w", err)
	}
	if n > 0 {
		return ErrWindowHasBookings
	}
	return nil
}

func validateWindow(in WindowInput) error {
	var fields []string
	if in.Date.IsZero() {
		fields = append(fields, "date is required")
	}
	if in.Start < 0 || in.End > 24*time.Hour {
		fields = append(fields, "start_time and end_time must lie within the day")
	}
	if in.Start >= in.End {
		fields = append(fields, "start_time must be before end_time")
	}
	if in.SlotDuration <= 0 {
		fields = append(fields, "slot_duration must be positive")
	} else if in.SlotDuration%time.Minute != 0 {
		fields = append(fields, "slot_duration must be whole minutes")
	}
	if len(fields) > 0 {
		return invalid(fields...)
	}
	return nil
}
