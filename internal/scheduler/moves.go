package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// moveWorkers bounds the number of hosts resolved in parallel.
const moveWorkers = 8

// ComputeMoves lists the hosts whose owning cloud differs between now and target.
// Hosts that fail to resolve are logged and left out; the rest are still returned.
func (s *Scheduler) ComputeMoves(ctx context.Context, target time.Time) ([]domain.Move, error) {
	hosts, err := s.hosts.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.Now()

	var (
		mu    sync.Mutex
		moves = []domain.Move{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(moveWorkers)
	for _, h := range hosts {
		g.Go(func() error {
			move, changed, err := s.moveFor(gctx, h.Name, now, target)
			if err != nil {
				log.WithFields(log.Fields{
					"host":  h.Name,
					"error": err,
				}).Warn("skipping host while computing moves")
				return nil
			}
			if changed {
				mu.Lock()
				moves = append(moves, move)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(moves, func(i, j int) bool { return moves[i].Host < moves[j].Host })
	metrics.PendingMoves.Set(float64(len(moves)))
	return moves, nil
}

func (s *Scheduler) moveFor(ctx context.Context, host string, now, target time.Time) (domain.Move, bool, error) {
	reservations, err := s.schedules.FindByHost(ctx, host)
	if err != nil {
		return domain.Move{}, false, err
	}
	current, err := ownerAt(host, reservations, now)
	if err != nil {
		return domain.Move{}, false, err
	}
	next, err := ownerAt(host, reservations, target)
	if err != nil {
		return domain.Move{}, false, err
	}
	return domain.Move{Host: host, Current: current, New: next}, current != next, nil
}
