package service

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds returned by the services. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrExpired           = errors.New("expired")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrAmountMismatch    = errors.New("amount mismatch")
)

// OverlapError reports the reservation window that blocks a new hold.
type OverlapError struct {
	ReservationID int64
	Start         time.Time
	End           time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("conflict: overlaps reservation %d [%s, %s)",
		e.ReservationID, e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// Unwrap makes OverlapError match ErrConflict.
func (e *OverlapError) Unwrap() error {
	return ErrConflict
}

func wrapf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
