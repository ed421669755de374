package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

const (
	meterUpdateAttempts = 2
	defaultMaxEnergyKWh = 1000
)

// SessionConfig bounds meter readings. MaxAmount caps the running charge and defaults
// to the payment limit.
type SessionConfig struct {
	MaxEnergyKWh float64
	MaxAmount    int64
}

// SessionService runs charging sessions from start to settlement hand-off.
type SessionService struct {
	sessions     SessionStore
	reservations ReservationStore
	catalog      CatalogStore
	wallet       *WalletService
	payments     *PaymentService
	cache        SessionCache
	feed         SessionPublisher
	cfg          SessionConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewSessionService builds the engine. cache and feed are optional.
func NewSessionService(
	sessions SessionStore,
	reservations ReservationStore,
	catalog CatalogStore,
	wallet *WalletService,
	payments *PaymentService,
	cache SessionCache,
	feed SessionPublisher,
	cfg SessionConfig,
	logger *zap.Logger,
) *SessionService {
	if cfg.MaxEnergyKWh <= 0 {
		cfg.MaxEnergyKWh = defaultMaxEnergyKWh
	}
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = defaultMaxAmount
		if payments != nil {
			cfg.MaxAmount = payments.cfg.MaxAmount
		}
	}
	return &SessionService{
		sessions:     sessions,
		reservations: reservations,
		catalog:      catalog,
		wallet:       wallet,
		payments:     payments,
		cache:        cache,
		feed:         feed,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// StartSessionInput opens a session. ReservationID is nil for walk-ins, which must name
// the connector instead.
type StartSessionInput struct {
	ReservationID *int64
	PillarID      int64
	ConnectorID   *int64
	DriverID      int64
	VehicleID     int64
	TargetSoc     *float64
	PaymentMethod models.PaymentMethod
}

// StopResult summarises a closed session and its settlement.
type StopResult struct {
	SessionID       int64                `json:"sessionId"`
	TotalAmount     int64                `json:"totalAmount"`
	EnergyKWh       float64              `json:"energyKwh"`
	PaymentMethod   models.PaymentMethod `json:"paymentMethod"`
	RequiresPayment bool                 `json:"requiresPayment"`
	PaymentID       *int64               `json:"paymentId,omitempty"`
	PaymentURL      string               `json:"paymentUrl,omitempty"`
}

// Start validates the driver, vehicle and reservation, pre-checks the wallet for ledger
// payments and opens an ACTIVE session priced at the pillar's current rate.
func (s *SessionService) Start(ctx context.Context, in StartSessionInput) (*models.ChargingSession, error) {
	method, err := models.ParsePaymentMethod(string(in.PaymentMethod))
	if err != nil {
		return nil, wrapf(ErrValidation, "%v", err)
	}
	if in.TargetSoc != nil && (*in.TargetSoc <= 0 || *in.TargetSoc > 1) {
		return nil, wrapf(ErrValidation, "targetSoc must be in (0, 1]")
	}

	vehicle, err := s.catalog.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return nil, notFoundAs(err, ErrValidation, "vehicle %d does not exist", in.VehicleID)
	}
	if vehicle.OwnerID != in.DriverID {
		return nil, wrapf(ErrForbidden, "vehicle %d belongs to another driver", in.VehicleID)
	}

	pillar, err := s.catalog.GetPillar(ctx, in.PillarID)
	if err != nil {
		return nil, notFoundAs(err, ErrValidation, "pillar %d does not exist", in.PillarID)
	}

	var reservation *models.Reservation
	var connectorID int64
	if in.ReservationID != nil {
		reservation, err = s.checkReservation(ctx, *in.ReservationID, in.DriverID, pillar.ID)
		if err != nil {
			return nil, err
		}
		connectorID = reservation.ConnectorID
	} else {
		if in.ConnectorID == nil {
			return nil, wrapf(ErrValidation, "connectorId is required without a reservation")
		}
		if err := s.checkWalkInConnector(ctx, *in.ConnectorID, pillar.ID); err != nil {
			return nil, err
		}
		connectorID = *in.ConnectorID
	}

	if method == models.MethodLedger {
		if err := s.precheckWallet(ctx, in.DriverID, vehicle, pillar, in.TargetSoc); err != nil {
			return nil, err
		}
	}

	if reservation != nil {
		moved, err := s.reservations.Transition(ctx, reservation.ID, reservation.Status, models.ReservationCharging)
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, wrapf(ErrConflict, "reservation %d changed state concurrently", reservation.ID)
		}
	}

	now := s.now().UTC()
	session := &models.ChargingSession{
		ReservationID: in.ReservationID,
		StationID:     pillar.StationID,
		PillarID:      pillar.ID,
		ConnectorID:   connectorID,
		DriverID:      in.DriverID,
		VehicleID:     in.VehicleID,
		StartTime:     now,
		Status:        models.SessionActive,
		RatePerKWh:    pillar.PricePerKWh,
		PaymentMethod: method,
		TargetSoc:     in.TargetSoc,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.catalog.SetConnectorStatus(ctx, connectorID, models.ConnectorOccupied); err != nil {
		s.logger.Warn("failed to mark connector occupied", zap.Int64("connector_id", connectorID), zap.Error(err))
	}
	s.publish(ctx, session)

	s.logger.Info("charging session started",
		zap.Int64("session_id", session.ID),
		zap.Int64("driver_id", in.DriverID),
		zap.Int64("connector_id", connectorID),
		zap.Int64("rate_per_kwh", session.RatePerKWh),
		zap.String("payment_method", string(method)),
	)
	return session, nil
}

func (s *SessionService) checkReservation(ctx context.Context, id, driverID, pillarID int64) (*models.Reservation, error) {
	reservation, err := s.reservations.Get(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrNotFound, "reservation %d", id)
	}
	if reservation.UserID != driverID {
		return nil, wrapf(ErrForbidden, "reservation %d belongs to another user", id)
	}
	if reservation.PillarID != pillarID {
		return nil, wrapf(ErrValidation, "reservation %d is for pillar %d", id, reservation.PillarID)
	}
	if reservation.Status != models.ReservationVerified && reservation.Status != models.ReservationPlugged {
		return nil, wrapf(ErrConflict, "reservation %d is %s, check in first", id, reservation.Status)
	}
	return reservation, nil
}

func (s *SessionService) checkWalkInConnector(ctx context.Context, connectorID, pillarID int64) error {
	connector, err := s.catalog.GetConnector(ctx, connectorID)
	if err != nil {
		return notFoundAs(err, ErrValidation, "connector %d does not exist", connectorID)
	}
	if connector.PillarID != pillarID {
		return wrapf(ErrValidation, "connector %d does not belong to pillar %d", connectorID, pillarID)
	}
	if connector.Status != models.ConnectorAvailable {
		return wrapf(ErrConflict, "connector %d is %s", connectorID, connector.Status)
	}
	return nil
}

// precheckWallet rejects ledger sessions whose estimated cost exceeds the balance.
func (s *SessionService) precheckWallet(ctx context.Context, driverID int64, vehicle *models.Vehicle, pillar *models.Pillar, targetSoc *float64) error {
	estimate := EstimateCost(vehicle, pillar.PricePerKWh, targetSoc)
	wallet, err := s.wallet.Balance(ctx, driverID)
	if err != nil {
		return err
	}
	if wallet.Balance < estimate {
		return wrapf(ErrInsufficientFunds, "estimated cost %d exceeds balance %d", estimate, wallet.Balance)
	}
	return nil
}

// EstimateCost prices charging the vehicle from its current SoC to target (full when nil).
func EstimateCost(vehicle *models.Vehicle, pricePerKWh int64, targetSoc *float64) int64 {
	target := 1.0
	if targetSoc != nil {
		target = *targetSoc
	}
	missing := target - vehicle.CurrentSoc
	if missing <= 0 {
		return 0
	}
	return int64(math.Ceil(missing * vehicle.BatteryCapacityKWh * float64(pricePerKWh)))
}

// ApplyMeterReading adds the energy delta since the last reading, priced at the
// session's snapshotted rate. Readings are cumulative and must not decrease.
func (s *SessionService) ApplyMeterReading(ctx context.Context, sessionID int64, energyKWh float64) (*models.ChargingSession, error) {
	if math.IsNaN(energyKWh) || math.IsInf(energyKWh, 0) || energyKWh < 0 {
		return nil, wrapf(ErrValidation, "energy must be a non-negative number")
	}
	if energyKWh > s.cfg.MaxEnergyKWh {
		return nil, wrapf(ErrValidation, "meter reading %.3f exceeds %.0f kWh", energyKWh, s.cfg.MaxEnergyKWh)
	}

	for attempt := 0; attempt < meterUpdateAttempts; attempt++ {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, notFoundAs(err, ErrNotFound, "session %d", sessionID)
		}
		if session.Status != models.SessionActive {
			return nil, wrapf(ErrConflict, "session %d is %s", sessionID, session.Status)
		}
		if energyKWh < session.EnergyKWh {
			return nil, wrapf(ErrValidation, "meter reading %.3f is below last reading %.3f", energyKWh, session.EnergyKWh)
		}

		amount, err := s.chargeFor(session, energyKWh)
		if err != nil {
			return nil, err
		}

		applied, err := s.sessions.UpdateMeter(ctx, sessionID, session.EnergyKWh, energyKWh, amount)
		if err != nil {
			return nil, err
		}
		if !applied {
			continue
		}

		session.EnergyKWh = energyKWh
		session.Amount = amount
		session.UpdatedAt = s.now().UTC()
		s.publish(ctx, session)
		s.logger.Debug("meter reading applied",
			zap.Int64("session_id", sessionID),
			zap.Float64("energy_kwh", energyKWh),
			zap.Int64("amount", amount),
		)
		return session, nil
	}
	return nil, wrapf(ErrConflict, "session %d was updated concurrently", sessionID)
}

// chargeFor prices the delta since the last reading at the session rate. The running
// total must stay within the configured limit.
func (s *SessionService) chargeFor(session *models.ChargingSession, energyKWh float64) (int64, error) {
	limit := s.cfg.MaxAmount
	delta := math.Round((energyKWh - session.EnergyKWh) * float64(session.RatePerKWh))
	if delta < 0 || delta > float64(limit) || session.Amount > limit-int64(delta) {
		return 0, wrapf(ErrValidation, "charge for session %d would exceed %d", session.ID, limit)
	}
	return session.Amount + int64(delta), nil
}

// Stop closes the session exactly once and hands the charged amount to settlement.
func (s *SessionService) Stop(ctx context.Context, driverID, sessionID int64) (*StopResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, notFoundAs(err, ErrNotFound, "session %d", sessionID)
	}
	if session.DriverID != driverID {
		return nil, wrapf(ErrForbidden, "session %d belongs to another driver", sessionID)
	}
	if session.Status != models.SessionActive {
		return nil, wrapf(ErrConflict, "session %d is %s", sessionID, session.Status)
	}

	now := s.now().UTC()
	closed, err := s.sessions.Complete(ctx, sessionID, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, wrapf(ErrConflict, "session %d was stopped concurrently", sessionID)
	}
	session.Status = models.SessionCompleted
	session.EndTime = &now

	if session.ReservationID != nil {
		if _, err := s.reservations.Transition(ctx, *session.ReservationID, models.ReservationCharging, models.ReservationPlugged); err != nil {
			s.logger.Warn("failed to move reservation to plugged", zap.Int64("reservation_id", *session.ReservationID), zap.Error(err))
		}
	}
	if err := s.catalog.SetConnectorStatus(ctx, session.ConnectorID, models.ConnectorAvailable); err != nil {
		s.logger.Warn("failed to release connector", zap.Int64("connector_id", session.ConnectorID), zap.Error(err))
	}
	s.publish(ctx, session)

	result := &StopResult{
		SessionID:     session.ID,
		TotalAmount:   session.Amount,
		EnergyKWh:     session.EnergyKWh,
		PaymentMethod: session.PaymentMethod,
	}
	s.logger.Info("charging session stopped",
		zap.Int64("session_id", sessionID),
		zap.Float64("energy_kwh", session.EnergyKWh),
		zap.Int64("amount", session.Amount),
	)

	if session.Amount <= 0 {
		return result, nil
	}

	referenceID := session.ID
	payment, err := s.payments.Create(ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentSessionCharge,
		Method:      session.PaymentMethod,
		Amount:      session.Amount,
		ReferenceID: &referenceID,
		Description: "charging session",
	})
	if err != nil {
		// The session stays closed; the driver settles it with a new payment.
		s.logger.Warn("session settlement not completed", zap.Int64("session_id", sessionID), zap.Error(err))
		result.RequiresPayment = true
		return result, nil
	}

	result.PaymentID = &payment.Payment.ID
	result.PaymentURL = payment.PaymentURL
	result.RequiresPayment = payment.Payment.Status != models.PaymentSuccess

	if payment.Payment.Status == models.PaymentSuccess && session.TargetSoc != nil {
		if err := s.catalog.UpdateVehicleSoc(ctx, session.VehicleID, *session.TargetSoc); err != nil {
			s.logger.Warn("failed to update vehicle soc", zap.Int64("vehicle_id", session.VehicleID), zap.Error(err))
		}
	}
	return result, nil
}

// Get returns one of the driver's sessions, served from the cache while ACTIVE.
func (s *SessionService) Get(ctx context.Context, driverID, sessionID int64) (*models.ChargingSession, error) {
	var session *models.ChargingSession
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			s.logger.Warn("session cache read failed", zap.Int64("session_id", sessionID), zap.Error(err))
		}
		session = cached
	}
	if session == nil {
		stored, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, notFoundAs(err, ErrNotFound, "session %d", sessionID)
		}
		session = stored
	}
	if session.DriverID != driverID {
		return nil, wrapf(ErrForbidden, "session %d belongs to another driver", sessionID)
	}
	return session, nil
}

// ListMine returns the driver's latest sessions.
func (s *SessionService) ListMine(ctx context.Context, driverID int64, limit int) ([]models.ChargingSession, error) {
	return s.sessions.ListByDriver(ctx, driverID, limit)
}

func (s *SessionService) publish(ctx context.Context, session *models.ChargingSession) {
	if s.cache != nil {
		var err error
		if session.Status == models.SessionActive {
			err = s.cache.Save(ctx, session)
		} else {
			err = s.cache.Delete(ctx, session.ID)
		}
		if err != nil {
			s.logger.Warn("session cache write failed", zap.Int64("session_id", session.ID), zap.Error(err))
		}
	}
	if s.feed != nil {
		s.feed.Publish(session)
	}
}

func notFoundAs(err, kind error, format string, args ...interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return wrapf(kind, format, args...)
	}
	return err
}
