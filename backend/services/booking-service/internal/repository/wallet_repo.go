package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargeslot/backend/services/booking-service/internal/models"
)

// WalletRepository stores balances. Every write is a single conditional statement.
type WalletRepository struct {
	db *sql.DB
}

// NewWalletRepository returns repository.
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Get returns the wallet, or a zero balance when the user has none.
func (r *WalletRepository) Get(ctx context.Context, userID int64) (*models.Wallet, error) {
	const query = `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1`
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Wallet{UserID: userID}, nil
		}
		return nil, err
	}
	return &w, nil
}

// Debit withdraws amount only when the balance covers it.
func (r *WalletRepository) Debit(ctx context.Context, userID, amount int64) (bool, error) {
	const query = `
		UPDATE wallets
		SET balance = balance - $2,
		    updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
	`
	return affectedOne(r.db.ExecContext(ctx, query, userID, amount))
}

// Credit deposits amount, creating the wallet on first use.
func (r *WalletRepository) Credit(ctx context.Context, userID, amount int64) (*models.Wallet, error) {
	const query = `
		INSERT INTO wallets (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance = wallets.balance + EXCLUDED.balance,
			updated_at = NOW()
		RETURNING user_id, balance, updated_at
	`
	var w models.Wallet
	if err := r.db.QueryRowContext(ctx, query, userID, amount).Scan(&w.UserID, &w.Balance, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
