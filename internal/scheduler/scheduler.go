package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/metrics"
	"github.com/jbweber/homelab/hutch/internal/repository"
	log "github.com/sirupsen/logrus"
)

// Scheduler guards the reservation store. Every write goes through an
// availability check under the host's lock.
type Scheduler struct {
	hosts     repository.HostRepository
	clouds    repository.CloudRepository
	schedules repository.ScheduleRepository
	locks     *hostLocks

	// Now is the clock used for "current" lookups.
	Now func() time.Time
}

// New creates a Scheduler over the given repositories.
func New(hosts repository.HostRepository, clouds repository.CloudRepository, schedules repository.ScheduleRepository) *Scheduler {
	return &Scheduler{
		hosts:     hosts,
		clouds:    clouds,
		schedules: schedules,
		locks:     defaultLocks,
		Now:       time.Now,
	}
}

// CreateRequest asks for host to be assigned to cloud during [Start, End).
type CreateRequest struct {
	Host  string
	Cloud string
	Start time.Time
	End   time.Time
}

// UpdateRequest changes an existing reservation. Nil fields keep their current value.
type UpdateRequest struct {
	Host  string
	Index int64
	Cloud *string
	Start *time.Time
	End   *time.Time
}

// Create validates and stores a new reservation with a fresh per-host index.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (domain.Reservation, error) {
	unlock := s.locks.lock(req.Host)
	defer unlock()

	if _, err := s.hosts.FindByName(ctx, req.Host); err != nil {
		return domain.Reservation{}, err
	}
	if _, err := s.clouds.FindByName(ctx, req.Cloud); err != nil {
		return domain.Reservation{}, err
	}
	req.Start, req.End = req.Start.Truncate(time.Second), req.End.Truncate(time.Second)
	if !req.Start.Before(req.End) {
		return domain.Reservation{}, fmt.Errorf("start must be before end: %w", repository.ErrInvalidEntity)
	}

	existing, err := s.schedules.FindByHost(ctx, req.Host)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !IsAvailable(existing, req.Start, req.End, nil) {
		metrics.ReservationConflictsTotal.WithLabelValues(metrics.OpCreate).Inc()
		return domain.Reservation{}, fmt.Errorf("host %s: %w", req.Host, ErrUnavailable)
	}

	saved, err := s.schedules.Save(ctx, domain.Reservation{
		Host:  req.Host,
		Cloud: req.Cloud,
		Start: req.Start,
		End:   req.End,
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	metrics.ReservationsTotal.WithLabelValues(metrics.OpCreate).Inc()

	log.WithFields(log.Fields{
		"host":  saved.Host,
		"cloud": saved.Cloud,
		"index": saved.Index,
	}).Info("reservation created")
	s.refreshOwnerLocked(ctx, req.Host)
	return saved, nil
}

// Update merges req onto the stored reservation, validates the result and checks
// it against every other reservation of the host.
func (s *Scheduler) Update(ctx context.Context, req UpdateRequest) (domain.Reservation, error) {
	unlock := s.locks.lock(req.Host)
	defer unlock()

	current, err := s.schedules.FindByHostAndIndex(ctx, req.Host, req.Index)
	if err != nil {
		return domain.Reservation{}, err
	}

	merged := current
	if req.Cloud != nil && *req.Cloud != current.Cloud {
		if _, err := s.clouds.FindByName(ctx, *req.Cloud); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Reservation{}, fmt.Errorf("%w: %w", ErrUnknownCloud, err)
			}
			return domain.Reservation{}, err
		}
		merged.Cloud = *req.Cloud
	}
	if req.Start != nil {
		merged.Start = req.Start.Truncate(time.Second)
	}
	if req.End != nil {
		merged.End = req.End.Truncate(time.Second)
	}
	if !merged.Start.Before(merged.End) {
		return domain.Reservation{}, fmt.Errorf("start must be before end: %w", repository.ErrInvalidEntity)
	}

	existing, err := s.schedules.FindByHost(ctx, req.Host)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !IsAvailable(existing, merged.Start, merged.End, &current.Index) {
		metrics.ReservationConflictsTotal.WithLabelValues(metrics.OpUpdate).Inc()
		return domain.Reservation{}, fmt.Errorf("host %s: %w", req.Host, ErrUnavailable)
	}

	saved, err := s.schedules.Save(ctx, merged)
	if err != nil {
		return domain.Reservation{}, err
	}
	metrics.ReservationsTotal.WithLabelValues(metrics.OpUpdate).Inc()

	log.WithFields(log.Fields{
		"host":  saved.Host,
		"cloud": saved.Cloud,
		"index": saved.Index,
	}).Info("reservation updated")
	s.refreshOwnerLocked(ctx, req.Host)
	return saved, nil
}

// Delete removes the reservation identified by host and index.
func (s *Scheduler) Delete(ctx context.Context, host string, index int64) error {
	unlock := s.locks.lock(host)
	defer unlock()

	if err := s.schedules.DeleteByHostAndIndex(ctx, host, index); err != nil {
		return err
	}
	metrics.ReservationsTotal.WithLabelValues(metrics.OpDelete).Inc()

	log.WithFields(log.Fields{
		"host":  host,
		"index": index,
	}).Info("reservation deleted")
	s.refreshOwnerLocked(ctx, host)
	return nil
}

// RefreshOwner recomputes the cached cloud of host from its reservations.
func (s *Scheduler) RefreshOwner(ctx context.Context, host string) error {
	unlock := s.locks.lock(host)
	defer unlock()
	return s.refreshOwner(ctx, host)
}

// RefreshOwners recomputes the cached cloud of every host. Failures are collected
// and do not stop the remaining hosts.
func (s *Scheduler) RefreshOwners(ctx context.Context) error {
	hosts, err := s.hosts.FindAll(ctx)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, h := range hosts {
		if err := s.RefreshOwner(ctx, h.Name); err != nil {
			result = multierror.Append(result, fmt.Errorf("host %s: %w", h.Name, err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Scheduler) refreshOwner(ctx context.Context, host string) error {
	owner, err := s.OwnerAt(ctx, host, s.Now())
	if err != nil {
		return err
	}
	return s.hosts.UpdateCloud(ctx, host, owner)
}

// refreshOwnerLocked updates the cache after a write. The write already succeeded,
// so a failure here is only logged.
func (s *Scheduler) refreshOwnerLocked(ctx context.Context, host string) {
	if err := s.refreshOwner(ctx, host); err != nil && !errors.Is(err, context.Canceled) {
		log.WithFields(log.Fields{
			"host":  host,
			"error": err,
		}).Warn("failed to refresh cached owner")
	}
}
