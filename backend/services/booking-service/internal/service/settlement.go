package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
)

// successHandler applies the business effect of a payment that just became SUCCESS.
// Handlers tolerate repeated invocation.
type successHandler func(ctx context.Context, payment *models.Payment, target models.PaymentTarget) error

func (s *PaymentService) dispatch(ctx context.Context, payment *models.Payment) error {
	target, err := payment.Target()
	if err != nil {
		return err
	}
	handler, ok := s.handlers[payment.Type]
	if !ok {
		return fmt.Errorf("payment: no success handler for %s", payment.Type)
	}
	if err := handler(ctx, payment, target); err != nil {
		s.logger.Error("payment success handler failed",
			zap.Int64("payment_id", payment.ID),
			zap.String("type", string(payment.Type)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *PaymentService) onReservationHoldPaid(ctx context.Context, payment *models.Payment, target models.PaymentTarget) error {
	t, ok := target.(models.ReservationTarget)
	if !ok {
		return fmt.Errorf("payment: unexpected target %T for reservation hold", target)
	}
	moved, err := s.reservations.Transition(ctx, t.ReservationID, models.ReservationPending, models.ReservationScheduled)
	if err != nil {
		return err
	}
	if !moved {
		s.logger.Info("reservation no longer pending, refunding hold", zap.Int64("reservation_id", t.ReservationID))
		return s.refund(ctx, payment, fmt.Sprintf("reservation %d could not be confirmed", t.ReservationID))
	}
	s.notify(ctx, models.Notification{
		UserID:  payment.UserID,
		Type:    models.NotifyReservationConfirmed,
		Message: fmt.Sprintf("reservation %d is confirmed", t.ReservationID),
	})
	return nil
}

// refund credits a captured payment back to the payer's wallet. The refunded flag on
// the payment is claimed first so each payment is credited at most once.
func (s *PaymentService) refund(ctx context.Context, payment *models.Payment, reason string) error {
	won, err := s.payments.MarkRefunded(ctx, payment.ID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	wallet, err := s.wallet.Credit(ctx, payment.UserID, payment.Amount)
	if err != nil {
		s.logger.Error("payment marked refunded but wallet credit failed",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("user_id", payment.UserID),
			zap.Int64("amount", payment.Amount),
			zap.Error(err),
		)
		return err
	}
	payment.Refunded = true
	s.logger.Info("payment refunded to wallet", zap.Int64("payment_id", payment.ID), zap.Int64("amount", payment.Amount))
	s.notify(ctx, models.Notification{
		UserID:  payment.UserID,
		Type:    models.NotifyPaymentRefunded,
		Message: fmt.Sprintf("%s; %d returned to your wallet, balance %d", reason, payment.Amount, wallet.Balance),
	})
	return nil
}

func (s *PaymentService) onWalletToppedUp(ctx context.Context, payment *models.Payment, _ models.PaymentTarget) error {
	wallet, err := s.wallet.Credit(ctx, payment.UserID, payment.Amount)
	if err != nil {
		return err
	}
	s.notify(ctx, models.Notification{
		UserID:  payment.UserID,
		Type:    models.NotifyWalletCredited,
		Message: fmt.Sprintf("wallet topped up by %d, balance %d", payment.Amount, wallet.Balance),
	})
	return nil
}

func (s *PaymentService) onSessionChargePaid(ctx context.Context, payment *models.Payment, target models.PaymentTarget) error {
	t, ok := target.(models.SessionTarget)
	if !ok {
		return fmt.Errorf("payment: unexpected target %T for session charge", target)
	}
	marked, err := s.sessions.MarkPaid(ctx, t.SessionID, payment.ID)
	if err != nil {
		return err
	}
	session, err := s.sessions.Get(ctx, t.SessionID)
	if err != nil {
		return err
	}
	if !marked {
		if session.PaymentID != nil && *session.PaymentID == payment.ID {
			return nil
		}
		s.logger.Info("session already paid by another payment, refunding", zap.Int64("session_id", t.SessionID))
		return s.refund(ctx, payment, fmt.Sprintf("charging session %d was already paid", t.SessionID))
	}
	if session.ReservationID != nil {
		if err := s.completeReservation(ctx, *session.ReservationID); err != nil {
			return err
		}
	}

	s.notify(ctx, models.Notification{
		UserID:  payment.UserID,
		Type:    models.NotifySessionPaid,
		Message: fmt.Sprintf("charging session %d paid: %d", t.SessionID, payment.Amount),
	})
	return nil
}

func (s *PaymentService) completeReservation(ctx context.Context, reservationID int64) error {
	reservation, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.Status.Terminal() {
		return nil
	}
	moved, err := s.reservations.Transition(ctx, reservationID, reservation.Status, models.ReservationCompleted)
	if err != nil {
		return err
	}
	if !moved {
		s.logger.Info("reservation changed state before completion", zap.Int64("reservation_id", reservationID))
	}
	return nil
}

func (s *PaymentService) onMembershipPaid(ctx context.Context, payment *models.Payment, target models.PaymentTarget) error {
	t, ok := target.(models.MembershipTarget)
	if !ok {
		return fmt.Errorf("payment: unexpected target %T for membership", target)
	}
	s.notify(ctx, models.Notification{
		UserID:  payment.UserID,
		Type:    models.NotifyMembershipRenewed,
		Message: fmt.Sprintf("membership %d renewed", t.MembershipID),
	})
	return nil
}

func (s *PaymentService) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}
