package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/service"
)

const (
	defaultInterval    = 60 * time.Second
	defaultConcurrency = 8
	defaultPendingTTL  = 10 * time.Minute
)

// Locker guards a sweep pass across replicas. TryLock returns ok=false when another
// holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

// SweeperConfig tunes the sweep loop.
type SweeperConfig struct {
	Interval    time.Duration
	Concurrency int
	PendingTTL  time.Duration
}

// SweepResult counts one pass.
type SweepResult struct {
	Scanned      int
	Transitioned int
	Failed       int
}

// transition is the outcome of evaluating one reservation.
type transition struct {
	to        models.ReservationStatus
	connector models.ConnectorStatus
}

// ExpirySweeper advances reservations through their time-based transitions.
type ExpirySweeper struct {
	reservations service.ReservationStore
	catalog      service.CatalogStore
	locker       Locker
	cfg          SweeperConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewExpirySweeper builds the sweeper. locker may be nil for a single replica.
func NewExpirySweeper(reservations service.ReservationStore, catalog service.CatalogStore, locker Locker, cfg SweeperConfig, logger *zap.Logger) *ExpirySweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	return &ExpirySweeper{
		reservations: reservations,
		catalog:      catalog,
		locker:       locker,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Start runs a pass immediately and then on every tick until ctx is done. Passes run
// on this goroutine, so they never overlap.
func (w *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("expiry sweeper started", zap.Duration("interval", w.cfg.Interval))
	w.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

func (w *ExpirySweeper) runPass(ctx context.Context) {
	if w.locker != nil {
		release, ok, err := w.locker.TryLock(ctx, w.cfg.Interval)
		if err != nil {
			w.logger.Warn("sweep lock unavailable, skipping pass", zap.Error(err))
			return
		}
		if !ok {
			w.logger.Debug("another replica holds the sweep lock")
			return
		}
		defer release()
	}

	result, err := w.Sweep(ctx)
	if err != nil {
		w.logger.Error("sweep pass failed", zap.Error(err))
		return
	}
	if result.Transitioned > 0 || result.Failed > 0 {
		w.logger.Info("sweep pass completed",
			zap.Int("scanned", result.Scanned),
			zap.Int("transitioned", result.Transitioned),
			zap.Int("failed", result.Failed),
		)
	}
}

// Sweep evaluates every non-terminal reservation once. A failing reservation is logged
// and counted without stopping the pass.
func (w *ExpirySweeper) Sweep(ctx context.Context) (SweepResult, error) {
	reservations, err := w.reservations.ListByStatuses(ctx, models.SweepableStatuses)
	if err != nil {
		return SweepResult{}, err
	}

	now := w.now().UTC()
	var transitioned, failed int64

	g := new(errgroup.Group)
	g.SetLimit(w.cfg.Concurrency)
	for i := range reservations {
		if ctx.Err() != nil {
			break
		}
		res := reservations[i]
		next, ok := w.evaluate(&res, now)
		if !ok {
			continue
		}
		g.Go(func() error {
			moved, err := w.apply(ctx, &res, next)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				w.logger.Error("sweep transition failed",
					zap.Int64("reservation_id", res.ID),
					zap.String("from", string(res.Status)),
					zap.String("to", string(next.to)),
					zap.Error(err),
				)
			case moved:
				atomic.AddInt64(&transitioned, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{
		Scanned:      len(reservations),
		Transitioned: int(transitioned),
		Failed:       int(failed),
	}, ctx.Err()
}

// evaluate returns the first matching rule for the reservation.
func (w *ExpirySweeper) evaluate(res *models.Reservation, now time.Time) (transition, bool) {
	switch res.Status {
	case models.ReservationPending:
		if now.Sub(res.CreatedAt) > w.cfg.PendingTTL {
			return transition{to: models.ReservationExpired, connector: models.ConnectorAvailable}, true
		}
	case models.ReservationScheduled:
		if !now.Before(res.StartTime) {
			return transition{to: models.ReservationVerifying, connector: models.ConnectorOccupied}, true
		}
	case models.ReservationVerifying, models.ReservationVerified, models.ReservationPlugged:
		if now.After(res.EndTime) {
			return transition{to: models.ReservationExpired, connector: models.ConnectorAvailable}, true
		}
	}
	return transition{}, false
}

// apply performs the conditional status change; the connector write only follows a won change.
func (w *ExpirySweeper) apply(ctx context.Context, res *models.Reservation, next transition) (bool, error) {
	moved, err := w.reservations.Transition(ctx, res.ID, res.Status, next.to)
	if err != nil || !moved {
		return false, err
	}
	if err := w.catalog.SetConnectorStatus(ctx, res.ConnectorID, next.connector); err != nil {
		return true, err
	}
	w.logger.Debug("reservation transitioned",
		zap.Int64("reservation_id", res.ID),
		zap.String("from", string(res.Status)),
		zap.String("to", string(next.to)),
	)
	return true, nil
}
