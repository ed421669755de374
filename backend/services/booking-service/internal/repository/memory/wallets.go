package memory

import (
	"context"

	"chargeslot/backend/services/booking-service/internal/models"
)

// WalletRepo is the in-memory wallet store.
type WalletRepo struct {
	s *Store
}

// Get returns the wallet, or a zero balance when the user has none.
func (r *WalletRepo) Get(_ context.Context, userID int64) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w, ok := r.s.wallets[userID]; ok {
		out := *w
		return &out, nil
	}
	return &models.Wallet{UserID: userID}, nil
}

// Debit withdraws amount when the balance covers it.
func (r *WalletRepo) Debit(_ context.Context, userID, amount int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[userID]
	if !ok || w.Balance < amount {
		return false, nil
	}
	w.Balance -= amount
	w.UpdatedAt = r.s.now().UTC()
	return true, nil
}

// Credit deposits amount, creating the wallet on first use.
func (r *WalletRepo) Credit(_ context.Context, userID, amount int64) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		w = &models.Wallet{UserID: userID}
		r.s.wallets[userID] = w
	}
	w.Balance += amount
	w.UpdatedAt = r.s.now().UTC()
	out := *w
	return &out, nil
}
