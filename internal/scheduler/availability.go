package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/repository"
)

// IsAvailable reports whether [start, end) overlaps none of the given reservations.
// A reservation whose index equals exclude is ignored.
func IsAvailable(reservations []domain.Reservation, start, end time.Time, exclude *int64) bool {
	for _, r := range reservations {
		if exclude != nil && r.Index == *exclude {
			continue
		}
		if r.Overlaps(start, end) {
			return false
		}
	}
	return true
}

// IsAvailable checks host's committed reservations against [start, end).
func (s *Scheduler) IsAvailable(ctx context.Context, host string, start, end time.Time, exclude *int64) (bool, error) {
	if !start.Before(end) {
		return false, fmt.Errorf("start must be before end: %w", repository.ErrInvalidEntity)
	}
	if _, err := s.hosts.FindByName(ctx, host); err != nil {
		return false, err
	}

	existing, err := s.schedules.FindByHost(ctx, host)
	if err != nil {
		return false, err
	}
	return IsAvailable(existing, start, end, exclude), nil
}
