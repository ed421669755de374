package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
)

const sessionColumns = `id, reservation_id, station_id, pillar_id, connector_id, driver_id, vehicle_id, start_time, end_time, status,
	energy_kwh, amount, rate_per_kwh, payment_method, target_soc, paid, payment_id, created_at, updated_at`

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *models.ChargingSession) error {
	const query = `
		INSERT INTO charging_sessions (reservation_id, station_id, pillar_id, connector_id, driver_id, vehicle_id, start_time, status,
			energy_kwh, amount, rate_per_kwh, payment_method, target_soc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		s.ReservationID,
		s.StationID,
		s.PillarID,
		s.ConnectorID,
		s.DriverID,
		s.VehicleID,
		s.StartTime,
		s.Status,
		s.EnergyKWh,
		s.Amount,
		s.RatePerKWh,
		s.PaymentMethod,
		s.TargetSoc,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// Get returns session by id.
func (r *SessionRepository) Get(ctx context.Context, id int64) (*models.ChargingSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE id = $1`
	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

// UpdateMeter is a compare-and-set on the previous cumulative energy.
func (r *SessionRepository) UpdateMeter(ctx context.Context, id int64, prevEnergy, energy float64, amount int64) (bool, error) {
	const query = `
		UPDATE charging_sessions
		SET energy_kwh = $3,
		    amount = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE' AND energy_kwh = $2
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, prevEnergy, energy, amount))
}

// Complete closes an ACTIVE session.
func (r *SessionRepository) Complete(ctx context.Context, id int64, end time.Time) (bool, error) {
	const query = `
		UPDATE charging_sessions
		SET status = 'COMPLETED',
		    end_time = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, end))
}

// MarkPaid flags an unpaid session as paid by the payment.
func (r *SessionRepository) MarkPaid(ctx context.Context, id, paymentID int64) (bool, error) {
	const query = `
		UPDATE charging_sessions
		SET paid = TRUE,
		    payment_id = $2,
		    updated_at = NOW()
		WHERE id = $1 AND paid = FALSE
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, paymentID))
}

// ListByDriver returns last N sessions for driver.
func (r *SessionRepository) ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.ChargingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE driver_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ChargingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*models.ChargingSession, error) {
	var (
		s             models.ChargingSession
		reservationID sql.NullInt64
		endTime       sql.NullTime
		targetSoc     sql.NullFloat64
		paymentID     sql.NullInt64
	)
	err := row.Scan(
		&s.ID,
		&reservationID,
		&s.StationID,
		&s.PillarID,
		&s.ConnectorID,
		&s.DriverID,
		&s.VehicleID,
		&s.StartTime,
		&endTime,
		&s.Status,
		&s.EnergyKWh,
		&s.Amount,
		&s.RatePerKWh,
		&s.PaymentMethod,
		&targetSoc,
		&s.Paid,
		&paymentID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if reservationID.Valid {
		s.ReservationID = &reservationID.Int64
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	if targetSoc.Valid {
		s.TargetSoc = &targetSoc.Float64
	}
	if paymentID.Valid {
		s.PaymentID = &paymentID.Int64
	}
	return &s, nil
}
