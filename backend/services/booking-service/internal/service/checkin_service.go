package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

const defaultTokenTTL = 5 * time.Minute

// CheckInService issues and verifies single-use arrival tokens.
type CheckInService struct {
	reservations ReservationStore
	tokens       CheckInStore
	ttl          time.Duration
	baseURL      string
	logger       *zap.Logger
	now          func() time.Time
}

// NewCheckInService builds the service. baseURL is the page that receives ?token=.
func NewCheckInService(reservations ReservationStore, tokens CheckInStore, ttl time.Duration, baseURL string, logger *zap.Logger) *CheckInService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &CheckInService{
		reservations: reservations,
		tokens:       tokens,
		ttl:          ttl,
		baseURL:      strings.TrimRight(baseURL, "?"),
		logger:       logger,
		now:          time.Now,
	}
}

// IssuedToken is returned to the driver.
type IssuedToken struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CheckInURL string    `json:"checkinUrl"`
}

// VerifyResult reports the reservation state after a successful check-in.
type VerifyResult struct {
	ReservationID int64                    `json:"reservationId"`
	NewStatus     models.ReservationStatus `json:"newStatus"`
}

// Issue replaces any unconsumed token of the reservation with a fresh one.
func (s *CheckInService) Issue(ctx context.Context, userID, reservationID int64) (*IssuedToken, error) {
	reservation, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, wrapf(ErrNotFound, "reservation %d", reservationID)
		}
		return nil, err
	}
	if reservation.UserID != userID {
		return nil, wrapf(ErrForbidden, "reservation %d belongs to another user", reservationID)
	}
	if reservation.Status.Terminal() {
		return nil, wrapf(ErrConflict, "reservation %d is %s", reservationID, reservation.Status)
	}

	now := s.now().UTC()
	token := &models.CheckInToken{
		Token:         uuid.NewString(),
		UserID:        userID,
		ReservationID: reservationID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.tokens.Replace(ctx, token); err != nil {
		return nil, err
	}

	s.logger.Info("check-in token issued",
		zap.Int64("reservation_id", reservationID),
		zap.Int64("user_id", userID),
		zap.Time("expires_at", token.ExpiresAt),
	)
	return &IssuedToken{
		Token:      token.Token,
		ExpiresAt:  token.ExpiresAt,
		CheckInURL: s.checkInURL(token.Token),
	}, nil
}

func (s *CheckInService) checkInURL(token string) string {
	return s.baseURL + "?token=" + url.QueryEscape(token)
}

// Verify consumes the token and moves its reservation to VERIFIED. Of concurrent
// attempts on one token exactly one succeeds; the rest get ErrConflict.
func (s *CheckInService) Verify(ctx context.Context, userID int64, rawToken string) (*VerifyResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, wrapf(ErrValidation, "token is required")
	}

	token, err := s.tokens.GetByToken(ctx, rawToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, wrapf(ErrNotFound, "unknown check-in token")
		}
		return nil, err
	}
	if token.UserID != userID {
		return nil, wrapf(ErrForbidden, "check-in token belongs to another user")
	}
	if token.Used {
		return nil, wrapf(ErrConflict, "check-in token already used")
	}

	now := s.now().UTC()
	if !now.Before(token.ExpiresAt) {
		return nil, wrapf(ErrExpired, "check-in token expired at %s", token.ExpiresAt.Format(time.RFC3339))
	}

	result, err := s.tokens.Consume(ctx, token.ID, token.ReservationID, now)
	if err != nil {
		return nil, err
	}

	switch result {
	case models.ConsumeApplied:
		s.logger.Info("reservation checked in",
			zap.Int64("reservation_id", token.ReservationID),
			zap.Int64("user_id", userID),
		)
		return &VerifyResult{ReservationID: token.ReservationID, NewStatus: models.ReservationVerified}, nil
	case models.ConsumeReservationMoved:
		return nil, wrapf(ErrConflict, "reservation %d is not awaiting check-in", token.ReservationID)
	default:
		// Another verify consumed it between the read and the write.
		return nil, wrapf(ErrConflict, "check-in token already used")
	}
}
