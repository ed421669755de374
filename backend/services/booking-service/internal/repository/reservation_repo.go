package repository

import (
	"context"
	"database/sql"
	"errors"

	libdb "chargeslot/backend/libs/db"
	"chargeslot/backend/services/booking-service/internal/models"
)

const reservationColumns = `id, user_id, station_id, pillar_id, connector_id, start_time, end_time, status, hold_fee, created_at, updated_at, expired_at`

// ReservationRepository handles persistence of reservations.
type ReservationRepository struct {
	db *sql.DB
}

// NewReservationRepository returns repository.
func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// CreateIfNoOverlap serialises inserts per pillar with a transaction-scoped advisory lock,
// then checks for a blocking active reservation before inserting.
func (r *ReservationRepository) CreateIfNoOverlap(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	var blocking *models.Reservation
	err := libdb.WithTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, res.PillarID); err != nil {
			return err
		}

		const overlapQuery = `
			SELECT ` + reservationColumns + `
			FROM reservations
			WHERE pillar_id = $1
			  AND status = ANY($2)
			  AND start_time < $3
			  AND expired_at > $4
			ORDER BY start_time
			LIMIT 1
		`
		existing, err := scanReservation(tx.QueryRowContext(ctx, overlapQuery,
			res.PillarID,
			statusStrings(models.ActiveReservationStatuses),
			res.ExpiredAt,
			res.StartTime,
		))
		if err == nil {
			blocking = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		const insertQuery = `
			INSERT INTO reservations (user_id, station_id, pillar_id, connector_id, start_time, end_time, status, hold_fee, expired_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			RETURNING id, created_at, updated_at
		`
		return tx.QueryRowContext(ctx, insertQuery,
			res.UserID,
			res.StationID,
			res.PillarID,
			res.ConnectorID,
			res.StartTime,
			res.EndTime,
			res.Status,
			res.HoldFee,
			res.ExpiredAt,
		).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return blocking, nil
}

// Get returns reservation by id.
func (r *ReservationRepository) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return scanReservation(r.db.QueryRowContext(ctx, query, id))
}

// ListByUser returns last N reservations for user.
func (r *ReservationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	return r.list(ctx, query, userID, limit)
}

// ListByStatuses returns every reservation in one of the statuses.
func (r *ReservationRepository) ListByStatuses(ctx context.Context, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	const query = `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = ANY($1)
		ORDER BY id
	`
	return r.list(ctx, query, statusStrings(statuses))
}

// Transition is a compare-and-set on status.
func (r *ReservationRepository) Transition(ctx context.Context, id int64, from, to models.ReservationStatus) (bool, error) {
	const query = `
		UPDATE reservations
		SET status = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, from, to))
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var res models.Reservation
	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.StationID,
		&res.PillarID,
		&res.ConnectorID,
		&res.StartTime,
		&res.EndTime,
		&res.Status,
		&res.HoldFee,
		&res.CreatedAt,
		&res.UpdatedAt,
		&res.ExpiredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

func statusStrings(statuses []models.ReservationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func affectedOne(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
