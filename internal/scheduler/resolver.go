package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/repository"
	log "github.com/sirupsen/logrus"
)

// activeAt returns the reservations containing at.
func activeAt(reservations []domain.Reservation, at time.Time) []domain.Reservation {
	var active []domain.Reservation
	for _, r := range reservations {
		if r.ActiveAt(at) {
			active = append(active, r)
		}
	}
	return active
}

// resolve picks the single reservation of one host active at at. More than one
// match means the no-overlap invariant was broken somewhere.
func resolve(host string, reservations []domain.Reservation, at time.Time) (*domain.Reservation, error) {
	active := activeAt(reservations, at)
	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return &active[0], nil
	}

	indexes := make([]int64, len(active))
	for i, r := range active {
		indexes[i] = r.Index
	}
	log.WithFields(log.Fields{
		"host":    host,
		"at":      at.UTC().Format(time.RFC3339),
		"indexes": indexes,
	}).Error("multiple reservations active at the same instant")
	return nil, fmt.Errorf("host %s at %s: %w", host, at.UTC().Format(time.RFC3339), ErrCorrupt)
}

// ownerAt resolves the owning cloud, falling back to the default pool.
func ownerAt(host string, reservations []domain.Reservation, at time.Time) (string, error) {
	r, err := resolve(host, reservations, at)
	if err != nil {
		return "", err
	}
	if r == nil {
		return domain.DefaultCloud, nil
	}
	return r.Cloud, nil
}

// CurrentSchedule returns the reservation of host active at at, or nil when the
// host is in the default pool.
func (s *Scheduler) CurrentSchedule(ctx context.Context, host string, at time.Time) (*domain.Reservation, error) {
	reservations, err := s.schedules.FindByHost(ctx, host)
	if err != nil {
		return nil, err
	}
	return resolve(host, reservations, at)
}

// CurrentScheduleForCloud returns every reservation assigning a host to cloud at at.
func (s *Scheduler) CurrentScheduleForCloud(ctx context.Context, cloud string, at time.Time) ([]domain.Reservation, error) {
	reservations, err := s.schedules.FindByCloud(ctx, cloud)
	if err != nil {
		return nil, err
	}
	return resolveEach(reservations, at)
}

// CurrentSchedules returns the reservation active at at for every host that has one.
func (s *Scheduler) CurrentSchedules(ctx context.Context, at time.Time) ([]domain.Reservation, error) {
	reservations, err := s.schedules.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return resolveEach(reservations, at)
}

// resolveEach resolves reservations host by host, keeping the input order of hosts.
func resolveEach(reservations []domain.Reservation, at time.Time) ([]domain.Reservation, error) {
	var hosts []string
	byHost := map[string][]domain.Reservation{}
	for _, r := range reservations {
		if _, ok := byHost[r.Host]; !ok {
			hosts = append(hosts, r.Host)
		}
		byHost[r.Host] = append(byHost[r.Host], r)
	}

	var current []domain.Reservation
	for _, host := range hosts {
		r, err := resolve(host, byHost[host], at)
		if err != nil {
			return nil, err
		}
		if r != nil {
			current = append(current, *r)
		}
	}
	return current, nil
}

// OwnerAt returns the cloud owning host at at. It never returns an empty name.
func (s *Scheduler) OwnerAt(ctx context.Context, host string, at time.Time) (string, error) {
	reservations, err := s.schedules.FindByHost(ctx, host)
	if err != nil {
		return "", err
	}
	return ownerAt(host, reservations, at)
}

// OwningCloud returns the cloud record owning host at at. The default pool does
// not need a stored record.
func (s *Scheduler) OwningCloud(ctx context.Context, host string, at time.Time) (domain.Cloud, error) {
	owner, err := s.OwnerAt(ctx, host, at)
	if err != nil {
		return domain.Cloud{}, err
	}
	cloud, err := s.clouds.FindByName(ctx, owner)
	if err != nil {
		if owner == domain.DefaultCloud && errors.Is(err, repository.ErrNotFound) {
			return domain.Cloud{Name: domain.DefaultCloud}, nil
		}
		return domain.Cloud{}, err
	}
	return cloud, nil
}
