package service

import (
	"context"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
)

// WalletService is the ledger. Balances change only through Debit and Credit.
type WalletService struct {
	store  WalletStore
	logger *zap.Logger
}

// NewWalletService builds the ledger.
func NewWalletService(store WalletStore, logger *zap.Logger) *WalletService {
	return &WalletService{store: store, logger: logger}
}

// Balance returns the user's wallet. Users without a wallet row have a zero balance.
func (s *WalletService) Balance(ctx context.Context, userID int64) (*models.Wallet, error) {
	return s.store.Get(ctx, userID)
}

// Debit withdraws amount or fails with ErrInsufficientFunds leaving the balance untouched.
func (s *WalletService) Debit(ctx context.Context, userID, amount int64) error {
	if amount <= 0 {
		return wrapf(ErrValidation, "debit amount must be positive")
	}
	ok, err := s.store.Debit(ctx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return wrapf(ErrInsufficientFunds, "balance does not cover %d", amount)
	}
	s.logger.Info("wallet debited", zap.Int64("user_id", userID), zap.Int64("amount", amount))
	return nil
}

// Credit deposits amount.
func (s *WalletService) Credit(ctx context.Context, userID, amount int64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, wrapf(ErrValidation, "credit amount must be positive")
	}
	wallet, err := s.store.Credit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	s.logger.Info("wallet credited",
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", wallet.Balance),
	)
	return wallet, nil
}
