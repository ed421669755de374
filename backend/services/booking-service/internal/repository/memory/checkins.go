package memory

import (
	"context"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

// CheckInRepo is the in-memory check-in token store.
type CheckInRepo struct {
	s *Store
}

// Replace drops unconsumed tokens of the reservation and stores token.
func (r *CheckInRepo) Replace(_ context.Context, token *models.CheckInToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.tokens {
		if existing.ReservationID == token.ReservationID && !existing.Used {
			delete(r.s.tokens, id)
		}
	}
	token.ID = r.s.nextID()
	stored := *token
	r.s.tokens[token.ID] = &stored
	return nil
}

// GetByToken looks a token up by its opaque value.
func (r *CheckInRepo) GetByToken(_ context.Context, value string) (*models.CheckInToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.Token == value {
			out := *t
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

// Consume marks the token used and verifies the reservation under one lock.
func (r *CheckInRepo) Consume(_ context.Context, tokenID, reservationID int64, now time.Time) (models.ConsumeResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[tokenID]
	if !ok || t.Used || !now.Before(t.ExpiresAt) {
		return models.ConsumeTokenUnavailable, nil
	}
	res, ok := r.s.reservations[reservationID]
	if !ok || res.Status != models.ReservationVerifying {
		return models.ConsumeReservationMoved, nil
	}
	usedAt := now
	t.Used = true
	t.UsedAt = &usedAt
	r.s.transitionLocked(reservationID, models.ReservationVerifying, models.ReservationVerified)
	return models.ConsumeApplied, nil
}

// Unconsumed counts unconsumed tokens of a reservation.
func (r *CheckInRepo) Unconsumed(reservationID int64) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.tokens {
		if t.ReservationID == reservationID && !t.Used {
			n++
		}
	}
	return n
}
