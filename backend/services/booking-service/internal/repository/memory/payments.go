package memory

import (
	"context"
	"sort"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

// PaymentRepo is the in-memory payment store.
type PaymentRepo struct {
	s *Store
}

// CreateOrGetPending inserts p unless a matching PENDING row exists.
func (r *PaymentRepo) CreateOrGetPending(_ context.Context, p *models.Payment) (*models.Payment, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.findPendingLocked(p.Type, p.ReferenceID, p.UserID, p.Amount); existing != nil {
		out := *existing
		return &out, false, nil
	}
	r.s.insertPaymentLocked(p)
	out := *p
	return &out, true, nil
}

// FindPending returns the PENDING row for the tuple.
func (r *PaymentRepo) FindPending(_ context.Context, t models.PaymentType, referenceID *int64, userID, amount int64) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.findPendingLocked(t, referenceID, userID, amount); existing != nil {
		out := *existing
		return &out, nil
	}
	return nil, repository.ErrNotFound
}

// Create inserts p with its given status.
func (r *PaymentRepo) Create(_ context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.insertPaymentLocked(p)
	return nil
}

// Get returns a payment by id.
func (r *PaymentRepo) Get(_ context.Context, id int64) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	return &out, nil
}

// GetByTxnRef returns a payment by its reference.
func (r *PaymentRepo) GetByTxnRef(_ context.Context, txnRef string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.TxnRef == txnRef {
			out := *p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

// MarkSettled sets the final status unless the payment already succeeded.
func (r *PaymentRepo) MarkSettled(_ context.Context, id int64, status models.PaymentStatus, gatewayTxnID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status == models.PaymentSuccess {
		return false, nil
	}
	p.Status = status
	if gatewayTxnID != "" {
		txn := gatewayTxnID
		p.GatewayTxnID = &txn
	}
	p.UpdatedAt = r.s.now().UTC()
	return true, nil
}

// DeletePending drops the payment if it is still PENDING.
func (r *PaymentRepo) DeletePending(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.payments[id]; ok && p.Status == models.PaymentPending {
		delete(r.s.payments, id)
	}
	return nil
}

// MarkRefunded flags the payment once.
func (r *PaymentRepo) MarkRefunded(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Refunded {
		return false, nil
	}
	p.Refunded = true
	p.UpdatedAt = r.s.now().UTC()
	return true, nil
}

// ListByUser returns the user's payments, newest first.
func (r *PaymentRepo) ListByUser(_ context.Context, userID int64, limit int) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Payment
	for _, p := range r.s.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return truncate(out, limit), nil
}

// Count returns the number of stored payments.
func (r *PaymentRepo) Count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.payments)
}

func (s *Store) findPendingLocked(t models.PaymentType, referenceID *int64, userID, amount int64) *models.Payment {
	for _, p := range s.payments {
		if p.Status != models.PaymentPending || p.Type != t || p.UserID != userID || p.Amount != amount {
			continue
		}
		if refValue(p.ReferenceID) == refValue(referenceID) {
			return p
		}
	}
	return nil
}

func (s *Store) insertPaymentLocked(p *models.Payment) {
	p.ID = s.nextID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	stored := *p
	s.payments[p.ID] = &stored
}

func refValue(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
