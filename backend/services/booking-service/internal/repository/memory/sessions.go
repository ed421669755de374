package memory

import (
	"context"
	"sort"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

// SessionRepo is the in-memory charging session store.
type SessionRepo struct {
	s *Store
}

// Create stores a new session.
func (r *SessionRepo) Create(_ context.Context, session *models.ChargingSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session.ID = r.s.nextID()
	stored := *session
	r.s.sessions[session.ID] = &stored
	return nil
}

// Get returns a copy of the session.
func (r *SessionRepo) Get(_ context.Context, id int64) (*models.ChargingSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *session
	return &out, nil
}

// UpdateMeter applies the reading if the session is ACTIVE at prevEnergy.
func (r *SessionRepo) UpdateMeter(_ context.Context, id int64, prevEnergy, energy float64, amount int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[id]
	if !ok || session.Status != models.SessionActive || session.EnergyKWh != prevEnergy {
		return false, nil
	}
	session.EnergyKWh = energy
	session.Amount = amount
	session.UpdatedAt = r.s.now().UTC()
	return true, nil
}

// Complete closes an ACTIVE session.
func (r *SessionRepo) Complete(_ context.Context, id int64, end time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[id]
	if !ok || session.Status != models.SessionActive {
		return false, nil
	}
	endTime := end
	session.Status = models.SessionCompleted
	session.EndTime = &endTime
	session.UpdatedAt = end
	return true, nil
}

// MarkPaid flags an unpaid session as paid.
func (r *SessionRepo) MarkPaid(_ context.Context, id, paymentID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[id]
	if !ok || session.Paid {
		return false, nil
	}
	pid := paymentID
	session.Paid = true
	session.PaymentID = &pid
	return true, nil
}

// ListByDriver returns the driver's sessions, newest first.
func (r *SessionRepo) ListByDriver(_ context.Context, driverID int64, limit int) ([]models.ChargingSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ChargingSession
	for _, session := range r.s.sessions {
		if session.DriverID == driverID {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return truncate(out, limit), nil
}
