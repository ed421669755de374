package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	libdb "chargeslot/backend/libs/db"
	"chargeslot/backend/services/booking-service/internal/models"
)

// CheckInRepository stores check-in tokens.
type CheckInRepository struct {
	db *sql.DB
}

// NewCheckInRepository returns repository.
func NewCheckInRepository(db *sql.DB) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// Replace locks the reservation row, deletes its unconsumed tokens and inserts token.
func (r *CheckInRepository) Replace(ctx context.Context, token *models.CheckInToken) error {
	return libdb.WithTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = $1 FOR UPDATE`, token.ReservationID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM checkin_tokens WHERE reservation_id = $1 AND used = FALSE`, token.ReservationID); err != nil {
			return err
		}

		const insertQuery = `
			INSERT INTO checkin_tokens (token, user_id, reservation_id, created_at, expires_at, used)
			VALUES ($1, $2, $3, $4, $5, FALSE)
			RETURNING id
		`
		return tx.QueryRowContext(ctx, insertQuery,
			token.Token,
			token.UserID,
			token.ReservationID,
			token.CreatedAt,
			token.ExpiresAt,
		).Scan(&token.ID)
	})
}

// GetByToken returns the token row.
func (r *CheckInRepository) GetByToken(ctx context.Context, value string) (*models.CheckInToken, error) {
	const query = `
		SELECT id, token, user_id, reservation_id, created_at, expires_at, used, used_at
		FROM checkin_tokens
		WHERE token = $1
	`
	var (
		t      models.CheckInToken
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&t.ID,
		&t.Token,
		&t.UserID,
		&t.ReservationID,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.Used,
		&usedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

var errReservationMoved = errors.New("reservation moved")

// Consume marks the token used and verifies the reservation in one transaction.
// A concurrent consumer blocks on the token row and then matches no rows.
func (r *CheckInRepository) Consume(ctx context.Context, tokenID, reservationID int64, now time.Time) (models.ConsumeResult, error) {
	result := models.ConsumeApplied
	err := libdb.WithTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		const markUsed = `
			UPDATE checkin_tokens
			SET used = TRUE, used_at = $2
			WHERE id = $1 AND used = FALSE AND expires_at > $2
		`
		ok, err := affectedOne(tx.ExecContext(ctx, markUsed, tokenID, now))
		if err != nil {
			return err
		}
		if !ok {
			result = models.ConsumeTokenUnavailable
			return nil
		}

		const verify = `
			UPDATE reservations
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
		`
		ok, err = affectedOne(tx.ExecContext(ctx, verify, reservationID, models.ReservationVerified, models.ReservationVerifying))
		if err != nil {
			return err
		}
		if !ok {
			result = models.ConsumeReservationMoved
			return errReservationMoved
		}
		return nil
	})
	if errors.Is(err, errReservationMoved) {
		return result, nil
	}
	if err != nil {
		return 0, err
	}
	return result, nil
}
