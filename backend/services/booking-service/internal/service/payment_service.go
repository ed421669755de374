package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

const (
	defaultMaxAmount  = 100_000_000
	defaultGatewayTTL = 15 * time.Minute
	defaultPendingTTL = 10 * time.Minute

	gatewaySuccessCode = "00"
	gatewayMinorUnits  = 100
)

// Gateway callback parameter names.
const (
	CallbackTxnRef       = "txn_ref"
	CallbackAmount       = "amount"
	CallbackResponseCode = "response_code"
	CallbackTxnNo        = "transaction_no"
)

// PaymentConfig bounds amounts and gateway redirect lifetime. PendingTTL is how long an
// unpaid hold stays PENDING and must match the expiry sweeper.
type PaymentConfig struct {
	MaxAmount  int64
	GatewayTTL time.Duration
	PendingTTL time.Duration
}

// PaymentService creates payment intents and settles them.
type PaymentService struct {
	payments     PaymentStore
	wallet       *WalletService
	reservations ReservationStore
	sessions     SessionStore
	gateway      PaymentGateway
	notifier     Notifier
	cfg          PaymentConfig
	logger       *zap.Logger
	now          func() time.Time
	handlers     map[models.PaymentType]successHandler
}

// NewPaymentService builds the settlement engine.
func NewPaymentService(
	payments PaymentStore,
	wallet *WalletService,
	reservations ReservationStore,
	sessions SessionStore,
	gateway PaymentGateway,
	notifier Notifier,
	cfg PaymentConfig,
	logger *zap.Logger,
) *PaymentService {
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = defaultMaxAmount
	}
	if cfg.GatewayTTL <= 0 {
		cfg.GatewayTTL = defaultGatewayTTL
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	s := &PaymentService{
		payments:     payments,
		wallet:       wallet,
		reservations: reservations,
		sessions:     sessions,
		gateway:      gateway,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
	s.handlers = map[models.PaymentType]successHandler{
		models.PaymentReservationHold: s.onReservationHoldPaid,
		models.PaymentWalletTopup:     s.onWalletToppedUp,
		models.PaymentSessionCharge:   s.onSessionChargePaid,
		models.PaymentMembership:      s.onMembershipPaid,
	}
	return s
}

// CreatePaymentInput is a payment intent request.
type CreatePaymentInput struct {
	UserID      int64
	Type        models.PaymentType
	Method      models.PaymentMethod
	Amount      int64
	ReferenceID *int64
	Description string
	ClientIP    string
}

// PaymentResult carries the transaction and, for gateway payments, the redirect URL.
type PaymentResult struct {
	Payment    *models.Payment
	PaymentURL string
}

// intentScope is what validation learns about the payment target.
type intentScope struct {
	stationID int64
	// holdDeadline is when an unpaid hold expires; zero for other types.
	holdDeadline time.Time
}

// Create validates the intent and runs the settlement path of its method. An existing
// PENDING intent with the same type, reference, user and amount is returned unchanged,
// except for a ledger payment still in flight, which is a conflict.
func (s *PaymentService) Create(ctx context.Context, in CreatePaymentInput) (*PaymentResult, error) {
	scope, err := s.validate(ctx, &in)
	if err != nil {
		return nil, err
	}

	existing, err := s.payments.FindPending(ctx, in.Type, in.ReferenceID, in.UserID, in.Amount)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Method == models.MethodLedger {
			return nil, wrapf(ErrConflict, "payment %s is already in progress", existing.TxnRef)
		}
		return s.resultFor(existing, in.ClientIP)
	}

	now := s.now().UTC()
	payment := &models.Payment{
		TxnRef:      newTxnRef(),
		Amount:      in.Amount,
		Type:        in.Type,
		Method:      in.Method,
		ReferenceID: in.ReferenceID,
		UserID:      in.UserID,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch in.Method {
	case models.MethodLedger:
		return s.settleFromLedger(ctx, in, payment)
	case models.MethodCash:
		return s.createCashIntent(ctx, payment, scope.stationID)
	default:
		expiresAt := now.Add(s.cfg.GatewayTTL)
		if !scope.holdDeadline.IsZero() && scope.holdDeadline.Before(expiresAt) {
			expiresAt = scope.holdDeadline
		}
		payment.ExpiresAt = &expiresAt
		return s.createGatewayIntent(ctx, payment, in.ClientIP)
	}
}

// validate enforces amount bounds and type rules against the current state of the
// payment target.
func (s *PaymentService) validate(ctx context.Context, in *CreatePaymentInput) (intentScope, error) {
	var scope intentScope
	if in.Amount <= 0 {
		return scope, wrapf(ErrValidation, "amount must be positive")
	}
	if in.Amount > s.cfg.MaxAmount {
		return scope, wrapf(ErrValidation, "amount exceeds limit %d", s.cfg.MaxAmount)
	}
	if _, err := models.ParsePaymentType(string(in.Type)); err != nil {
		return scope, wrapf(ErrValidation, "%v", err)
	}
	if _, err := models.ParsePaymentMethod(string(in.Method)); err != nil {
		return scope, wrapf(ErrValidation, "%v", err)
	}

	if in.Type == models.PaymentWalletTopup {
		if in.Method == models.MethodLedger {
			return scope, wrapf(ErrValidation, "wallet top-up cannot be paid from the wallet")
		}
		in.ReferenceID = nil
		return scope, nil
	}
	if in.ReferenceID == nil {
		return scope, wrapf(ErrValidation, "%s payment requires referenceId", in.Type)
	}

	switch in.Type {
	case models.PaymentReservationHold:
		reservation, err := s.reservations.Get(ctx, *in.ReferenceID)
		if err != nil {
			return scope, notFoundAs(err, ErrNotFound, "reservation %d", *in.ReferenceID)
		}
		if reservation.UserID != in.UserID {
			return scope, wrapf(ErrForbidden, "reservation %d belongs to another user", reservation.ID)
		}
		if reservation.Status != models.ReservationPending {
			return scope, wrapf(ErrConflict, "reservation %d is %s", reservation.ID, reservation.Status)
		}
		if reservation.HoldFee != in.Amount {
			return scope, wrapf(ErrValidation, "amount must equal hold fee %d", reservation.HoldFee)
		}
		scope.holdDeadline = reservation.CreatedAt.Add(s.cfg.PendingTTL)
		if !s.now().Before(scope.holdDeadline) {
			return scope, wrapf(ErrConflict, "payment window for reservation %d has closed", reservation.ID)
		}
		scope.stationID = reservation.StationID
	case models.PaymentSessionCharge:
		session, err := s.sessions.Get(ctx, *in.ReferenceID)
		if err != nil {
			return scope, notFoundAs(err, ErrNotFound, "session %d", *in.ReferenceID)
		}
		if session.DriverID != in.UserID {
			return scope, wrapf(ErrForbidden, "session %d belongs to another user", session.ID)
		}
		if session.Status != models.SessionCompleted {
			return scope, wrapf(ErrConflict, "session %d is still %s", session.ID, session.Status)
		}
		if session.Paid {
			return scope, wrapf(ErrConflict, "session %d is already paid", session.ID)
		}
		if session.Amount != in.Amount {
			return scope, wrapf(ErrValidation, "amount must equal charged amount %d", session.Amount)
		}
		scope.stationID = session.StationID
	}
	return scope, nil
}

// settleFromLedger claims the PENDING slot for the intent before touching the wallet.
// The partial unique index admits one claim per (type, reference, user, amount), and the
// claim is held until the success handler has moved the target, so a concurrent caller
// either loses the claim or sees the target already settled.
func (s *PaymentService) settleFromLedger(ctx context.Context, in CreatePaymentInput, payment *models.Payment) (*PaymentResult, error) {
	payment.Status = models.PaymentPending
	claimed, created, err := s.payments.CreateOrGetPending(ctx, payment)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, wrapf(ErrConflict, "payment %s is already in progress", claimed.TxnRef)
	}

	if _, err := s.validate(ctx, &in); err != nil {
		s.release(ctx, claimed)
		return nil, err
	}
	if err := s.wallet.Debit(ctx, claimed.UserID, claimed.Amount); err != nil {
		s.release(ctx, claimed)
		return nil, err
	}

	dispatchErr := s.dispatch(ctx, claimed)
	if _, err := s.payments.MarkSettled(ctx, claimed.ID, models.PaymentSuccess, ""); err != nil {
		s.logger.Error("ledger payment debited but not marked settled",
			zap.Int64("payment_id", claimed.ID),
			zap.Int64("amount", claimed.Amount),
			zap.Error(err),
		)
		return nil, err
	}
	claimed.Status = models.PaymentSuccess

	s.logger.Info("ledger payment settled",
		zap.Int64("payment_id", claimed.ID),
		zap.String("type", string(claimed.Type)),
		zap.Int64("amount", claimed.Amount),
	)
	if dispatchErr != nil {
		return nil, dispatchErr
	}
	return &PaymentResult{Payment: claimed}, nil
}

// release drops a ledger claim that never debited the wallet.
func (s *PaymentService) release(ctx context.Context, payment *models.Payment) {
	if err := s.payments.DeletePending(ctx, payment.ID); err != nil {
		s.logger.Warn("failed to release ledger payment claim", zap.Int64("payment_id", payment.ID), zap.Error(err))
	}
}

func (s *PaymentService) createCashIntent(ctx context.Context, payment *models.Payment, stationID int64) (*PaymentResult, error) {
	payment.Status = models.PaymentPending
	stored, created, err := s.payments.CreateOrGetPending(ctx, payment)
	if err != nil {
		return nil, err
	}
	if created {
		s.notify(ctx, models.Notification{
			UserID:    payment.UserID,
			StationID: stationID,
			Type:      models.NotifyCashPaymentPending,
			Message:   "cash payment " + stored.TxnRef + " of " + strconv.FormatInt(stored.Amount, 10) + " awaits confirmation",
		})
	}
	return &PaymentResult{Payment: stored}, nil
}

func (s *PaymentService) createGatewayIntent(ctx context.Context, payment *models.Payment, clientIP string) (*PaymentResult, error) {
	payment.Status = models.PaymentPending
	stored, _, err := s.payments.CreateOrGetPending(ctx, payment)
	if err != nil {
		return nil, err
	}
	return s.resultFor(stored, clientIP)
}

func (s *PaymentService) resultFor(payment *models.Payment, clientIP string) (*PaymentResult, error) {
	result := &PaymentResult{Payment: payment}
	if payment.Method == models.MethodGateway && payment.Status == models.PaymentPending {
		paymentURL, err := s.gateway.PaymentURL(payment, clientIP)
		if err != nil {
			return nil, err
		}
		result.PaymentURL = paymentURL
	}
	return result, nil
}

// HandleGatewayCallback settles a gateway payment from its signed notification.
// Duplicate deliveries of a successful callback are acknowledged without side effects.
func (s *PaymentService) HandleGatewayCallback(ctx context.Context, params map[string]string) error {
	if !s.gateway.Verify(params) {
		s.logger.Warn("gateway callback with invalid signature", zap.String("txn_ref", params[CallbackTxnRef]))
		return ErrInvalidSignature
	}

	txnRef := params[CallbackTxnRef]
	payment, err := s.payments.GetByTxnRef(ctx, txnRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("gateway callback for unknown transaction", zap.String("txn_ref", txnRef))
			return wrapf(ErrNotFound, "transaction %s", txnRef)
		}
		return err
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(params[CallbackAmount]), 10, 64)
	if err != nil || amount != payment.Amount*gatewayMinorUnits {
		s.logger.Warn("gateway callback amount mismatch",
			zap.String("txn_ref", txnRef),
			zap.String("callback_amount", params[CallbackAmount]),
			zap.Int64("stored_amount", payment.Amount),
		)
		return ErrAmountMismatch
	}

	if payment.Status == models.PaymentSuccess {
		s.logger.Info("duplicate gateway callback ignored", zap.String("txn_ref", txnRef))
		return nil
	}

	status := models.PaymentFailed
	if params[CallbackResponseCode] == gatewaySuccessCode {
		status = models.PaymentSuccess
	}

	won, err := s.payments.MarkSettled(ctx, payment.ID, status, params[CallbackTxnNo])
	if err != nil {
		return err
	}
	if !won {
		s.logger.Info("gateway callback lost settlement race", zap.String("txn_ref", txnRef))
		return nil
	}

	s.logger.Info("gateway payment settled",
		zap.Int64("payment_id", payment.ID),
		zap.String("status", string(status)),
		zap.String("response_code", params[CallbackResponseCode]),
	)
	if status != models.PaymentSuccess {
		return nil
	}
	payment.Status = models.PaymentSuccess
	return s.dispatch(ctx, payment)
}

// ConfirmCash is the staff action that completes a PENDING cash payment.
func (s *PaymentService) ConfirmCash(ctx context.Context, staffID, paymentID int64) (*models.Payment, error) {
	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, wrapf(ErrNotFound, "payment %d", paymentID)
		}
		return nil, err
	}
	if payment.Method != models.MethodCash {
		return nil, wrapf(ErrValidation, "payment %d is not a cash payment", paymentID)
	}
	if payment.Status != models.PaymentPending {
		return nil, wrapf(ErrConflict, "payment %d is %s", paymentID, payment.Status)
	}

	won, err := s.payments.MarkSettled(ctx, payment.ID, models.PaymentSuccess, "")
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, wrapf(ErrConflict, "payment %d was settled concurrently", paymentID)
	}

	s.logger.Info("cash payment confirmed", zap.Int64("payment_id", paymentID), zap.Int64("staff_id", staffID))
	payment.Status = models.PaymentSuccess
	if err := s.dispatch(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// ListMine returns the user's latest payments.
func (s *PaymentService) ListMine(ctx context.Context, userID int64, limit int) ([]models.Payment, error) {
	return s.payments.ListByUser(ctx, userID, limit)
}

func newTxnRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
