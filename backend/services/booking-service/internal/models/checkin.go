package models

import "time"

// CheckInToken is a single-use proof of arrival for a reservation.
type CheckInToken struct {
	ID            int64      `db:"id" json:"id"`
	Token         string     `db:"token" json:"token"`
	UserID        int64      `db:"user_id" json:"userId"`
	ReservationID int64      `db:"reservation_id" json:"reservationId"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expiresAt"`
	Used          bool       `db:"used" json:"used"`
	UsedAt        *time.Time `db:"used_at" json:"usedAt,omitempty"`
}

// ConsumeResult is the outcome of the atomic token consumption step.
type ConsumeResult int

const (
	// ConsumeApplied means the token was marked used and the reservation verified.
	ConsumeApplied ConsumeResult = iota
	// ConsumeTokenUnavailable means the token was used or expired by the time of the write.
	ConsumeTokenUnavailable
	// ConsumeReservationMoved means the reservation left VERIFYING; nothing was written.
	ConsumeReservationMoved
)
