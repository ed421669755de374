package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

const (
	defaultUnitRate    = 1000
	defaultGracePad    = 15 * time.Minute
	defaultMaxAdvance  = 7 * 24 * time.Hour
	defaultMinDuration = 15 * time.Minute
)

// ReservationConfig tunes hold validation and pricing.
type ReservationConfig struct {
	UnitRate    int64
	GracePad    time.Duration
	MaxAdvance  time.Duration
	MinDuration time.Duration
}

func (c ReservationConfig) withDefaults() ReservationConfig {
	if c.UnitRate <= 0 {
		c.UnitRate = defaultUnitRate
	}
	if c.GracePad <= 0 {
		c.GracePad = defaultGracePad
	}
	if c.MaxAdvance <= 0 {
		c.MaxAdvance = defaultMaxAdvance
	}
	if c.MinDuration <= 0 {
		c.MinDuration = defaultMinDuration
	}
	return c
}

// ReservationService creates and manages connector holds.
type ReservationService struct {
	store   ReservationStore
	catalog CatalogStore
	plans   SubscriptionLookup
	cfg     ReservationConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewReservationService builds the service. plans may be nil, in which case every
// user pays the full hold fee.
func NewReservationService(
	store ReservationStore,
	catalog CatalogStore,
	plans SubscriptionLookup,
	cfg ReservationConfig,
	logger *zap.Logger,
) *ReservationService {
	return &ReservationService{
		store:   store,
		catalog: catalog,
		plans:   plans,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// CreateReservationInput is a hold request.
type CreateReservationInput struct {
	UserID      int64
	StationID   int64
	PillarID    int64
	ConnectorID int64
	StartTime   time.Time
	EndTime     time.Time
}

// Create validates the window, rejects overlaps and stores a new hold.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (*models.Reservation, error) {
	now := s.now().UTC()
	start, end := in.StartTime.UTC(), in.EndTime.UTC()

	if err := s.validateWindow(now, start, end); err != nil {
		return nil, err
	}
	if err := s.validatePlacement(ctx, in); err != nil {
		return nil, err
	}

	minutes := int64(end.Sub(start) / time.Minute)
	fee := s.holdFee(ctx, in.UserID, minutes, now)

	status := models.ReservationPending
	if fee == 0 {
		status = models.ReservationScheduled
	}

	reservation := &models.Reservation{
		UserID:      in.UserID,
		StationID:   in.StationID,
		PillarID:    in.PillarID,
		ConnectorID: in.ConnectorID,
		StartTime:   start,
		EndTime:     end,
		Status:      status,
		HoldFee:     fee,
		ExpiredAt:   end.Add(s.cfg.GracePad),
	}

	blocking, err := s.store.CreateIfNoOverlap(ctx, reservation)
	if err != nil {
		return nil, err
	}
	if blocking != nil {
		return nil, &OverlapError{
			ReservationID: blocking.ID,
			Start:         blocking.StartTime,
			End:           blocking.EndTime,
		}
	}

	s.logger.Info("reservation created",
		zap.Int64("reservation_id", reservation.ID),
		zap.Int64("user_id", in.UserID),
		zap.Int64("pillar_id", in.PillarID),
		zap.String("status", string(reservation.Status)),
		zap.Int64("hold_fee", fee),
	)
	return reservation, nil
}

func (s *ReservationService) validateWindow(now, start, end time.Time) error {
	horizon := now.Add(s.cfg.MaxAdvance)
	switch {
	case start.IsZero() || end.IsZero():
		return wrapf(ErrValidation, "start and end time are required")
	case !end.After(start):
		return wrapf(ErrValidation, "end time must be after start time")
	case !start.After(now):
		return wrapf(ErrValidation, "start time must be in the future")
	case start.After(horizon) || end.After(horizon):
		return wrapf(ErrValidation, "reservation must fall within %s of now", s.cfg.MaxAdvance)
	case end.Sub(start) < s.cfg.MinDuration:
		return wrapf(ErrValidation, "reservation must last at least %s", s.cfg.MinDuration)
	}
	return nil
}

func (s *ReservationService) validatePlacement(ctx context.Context, in CreateReservationInput) error {
	connector, err := s.catalog.GetConnector(ctx, in.ConnectorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return wrapf(ErrValidation, "connector %d does not exist", in.ConnectorID)
		}
		return err
	}
	if connector.PillarID != in.PillarID {
		return wrapf(ErrValidation, "connector %d does not belong to pillar %d", in.ConnectorID, in.PillarID)
	}

	pillar, err := s.catalog.GetPillar(ctx, in.PillarID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return wrapf(ErrValidation, "pillar %d does not exist", in.PillarID)
		}
		return err
	}
	if pillar.StationID != in.StationID {
		return wrapf(ErrValidation, "pillar %d does not belong to station %d", in.PillarID, in.StationID)
	}
	return nil
}

// holdFee applies the subscription discount. A failed plan lookup charges the full fee.
func (s *ReservationService) holdFee(ctx context.Context, userID, minutes int64, now time.Time) int64 {
	fee := minutes * s.cfg.UnitRate
	if s.plans == nil {
		return fee
	}

	plan, err := s.plans.ActivePlan(ctx, userID, now)
	if err != nil {
		s.logger.Warn("subscription lookup failed, charging full hold fee",
			zap.Int64("user_id", userID), zap.Error(err))
		return fee
	}

	switch plan {
	case models.PlanPremium:
		return 0
	case models.PlanPro:
		return fee / 2
	}
	return fee
}

// Get returns one of the user's reservations.
func (s *ReservationService) Get(ctx context.Context, userID, id int64) (*models.Reservation, error) {
	reservation, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, wrapf(ErrNotFound, "reservation %d", id)
		}
		return nil, err
	}
	if reservation.UserID != userID {
		return nil, wrapf(ErrForbidden, "reservation %d belongs to another user", id)
	}
	return reservation, nil
}

// ListMine returns the user's latest reservations.
func (s *ReservationService) ListMine(ctx context.Context, userID int64, limit int) ([]models.Reservation, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// Cancel terminates a reservation that has not been checked in yet.
func (s *ReservationService) Cancel(ctx context.Context, userID, id int64) (*models.Reservation, error) {
	reservation, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	switch reservation.Status {
	case models.ReservationPending, models.ReservationScheduled, models.ReservationVerifying:
	default:
		return nil, wrapf(ErrConflict, "reservation %d is %s and cannot be cancelled", id, reservation.Status)
	}

	ok, err := s.store.Transition(ctx, id, reservation.Status, models.ReservationCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrapf(ErrConflict, "reservation %d changed state concurrently", id)
	}

	// VERIFYING is the only pre-check-in state holding the connector.
	if reservation.Status == models.ReservationVerifying {
		if err := s.catalog.SetConnectorStatus(ctx, reservation.ConnectorID, models.ConnectorAvailable); err != nil {
			s.logger.Warn("failed to release connector", zap.Int64("connector_id", reservation.ConnectorID), zap.Error(err))
		}
	}

	reservation.Status = models.ReservationCancelled
	s.logger.Info("reservation cancelled", zap.Int64("reservation_id", id), zap.Int64("user_id", userID))
	return reservation, nil
}
