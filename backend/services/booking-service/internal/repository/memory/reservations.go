package memory

import (
	"context"
	"sort"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

// ReservationRepo is the in-memory reservation store.
type ReservationRepo struct {
	s *Store
}

// Put stores r as-is, assigning an id when missing.
func (r *ReservationRepo) Put(res models.Reservation) *models.Reservation {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if res.ID == 0 {
		res.ID = r.s.nextID()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = r.s.now().UTC()
	}
	res.UpdatedAt = res.CreatedAt
	stored := res
	r.s.reservations[res.ID] = &stored
	out := stored
	return &out
}

// CreateIfNoOverlap inserts res unless an active reservation on the pillar blocks it.
func (r *ReservationRepo) CreateIfNoOverlap(_ context.Context, res *models.Reservation) (*models.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var blocking *models.Reservation
	for _, existing := range r.s.reservations {
		if existing.PillarID != res.PillarID || !isActive(existing.Status) {
			continue
		}
		if existing.Blocks(res.StartTime, res.ExpiredAt) {
			if blocking == nil || existing.StartTime.Before(blocking.StartTime) {
				blocking = existing
			}
		}
	}
	if blocking != nil {
		out := *blocking
		return &out, nil
	}

	now := r.s.now().UTC()
	res.ID = r.s.nextID()
	res.CreatedAt = now
	res.UpdatedAt = now
	stored := *res
	r.s.reservations[res.ID] = &stored
	return nil, nil
}

// Get returns a copy of the reservation.
func (r *ReservationRepo) Get(_ context.Context, id int64) (*models.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *res
	return &out, nil
}

// ListByUser returns the user's reservations, newest start first.
func (r *ReservationRepo) ListByUser(_ context.Context, userID int64, limit int) ([]models.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Reservation
	for _, res := range r.s.reservations {
		if res.UserID == userID {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return truncate(out, limit), nil
}

// ListByStatuses returns reservations in any of the statuses.
func (r *ReservationRepo) ListByStatuses(_ context.Context, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[models.ReservationStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var out []models.Reservation
	for _, res := range r.s.reservations {
		if wanted[res.Status] {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Transition moves the reservation only if it is still in from.
func (r *ReservationRepo) Transition(_ context.Context, id int64, from, to models.ReservationStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failTransition[id]; err != nil {
		return false, err
	}
	return r.s.transitionLocked(id, from, to), nil
}

func (s *Store) transitionLocked(id int64, from, to models.ReservationStatus) bool {
	res, ok := s.reservations[id]
	if !ok || res.Status != from {
		return false
	}
	res.Status = to
	res.UpdatedAt = s.now().UTC()
	return true
}

func isActive(status models.ReservationStatus) bool {
	for _, st := range models.ActiveReservationStatuses {
		if st == status {
			return true
		}
	}
	return false
}

func truncate[T any](items []T, limit int) []T {
	if limit <= 0 {
		limit = 50
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
