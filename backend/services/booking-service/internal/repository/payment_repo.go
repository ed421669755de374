package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargeslot/backend/services/booking-service/internal/models"
)

const paymentColumns = `id, txn_ref, amount, type, method, reference_id, user_id, status, description, gateway_txn_id, created_at, updated_at, expires_at, refunded`

// PaymentRepository persists payment transactions.
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository returns repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateOrGetPending relies on the partial unique index over PENDING rows. When the insert
// is skipped the existing row is returned with created=false.
func (r *PaymentRepository) CreateOrGetPending(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
	const query = `
		INSERT INTO payment_transactions (txn_ref, amount, type, method, reference_id, user_id, status, description, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7, $8, NOW(), NOW())
		ON CONFLICT (type, COALESCE(reference_id, 0), user_id, amount) WHERE status = 'PENDING' DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.TxnRef,
		p.Amount,
		p.Type,
		p.Method,
		p.ReferenceID,
		p.UserID,
		p.Description,
		p.ExpiresAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		p.Status = models.PaymentPending
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	existing, err := r.FindPending(ctx, p.Type, p.ReferenceID, p.UserID, p.Amount)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindPending returns the PENDING row for (type, reference, user, amount).
func (r *PaymentRepository) FindPending(ctx context.Context, t models.PaymentType, referenceID *int64, userID, amount int64) (*models.Payment, error) {
	const query = `
		SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE status = 'PENDING'
		  AND type = $1
		  AND COALESCE(reference_id, 0) = COALESCE($2::BIGINT, 0)
		  AND user_id = $3
		  AND amount = $4
	`
	return scanPayment(r.db.QueryRowContext(ctx, query, t, referenceID, userID, amount))
}

// Create inserts a payment with its given status.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	const query = `
		INSERT INTO payment_transactions (txn_ref, amount, type, method, reference_id, user_id, status, description, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		p.TxnRef,
		p.Amount,
		p.Type,
		p.Method,
		p.ReferenceID,
		p.UserID,
		p.Status,
		p.Description,
		p.ExpiresAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Get returns payment by id.
func (r *PaymentRepository) Get(ctx context.Context, id int64) (*models.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE id = $1`
	return scanPayment(r.db.QueryRowContext(ctx, query, id))
}

// GetByTxnRef returns payment by reference.
func (r *PaymentRepository) GetByTxnRef(ctx context.Context, txnRef string) (*models.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE txn_ref = $1`
	return scanPayment(r.db.QueryRowContext(ctx, query, txnRef))
}

// MarkSettled writes the final status unless the row is already SUCCESS. Concurrent
// callers serialise on the row lock; only the first sees an affected row.
func (r *PaymentRepository) MarkSettled(ctx context.Context, id int64, status models.PaymentStatus, gatewayTxnID string) (bool, error) {
	const query = `
		UPDATE payment_transactions
		SET status = $2,
		    gateway_txn_id = COALESCE(NULLIF($3, ''), gateway_txn_id),
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'SUCCESS'
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, status, gatewayTxnID))
}

// DeletePending removes the row while it is still PENDING.
func (r *PaymentRepository) DeletePending(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payment_transactions WHERE id = $1 AND status = 'PENDING'`, id)
	return err
}

// MarkRefunded flips the refunded flag once. The conditional update makes a repeated
// refund of the same payment a no-op.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE payment_transactions
		SET refunded = TRUE, updated_at = NOW()
		WHERE id = $1 AND refunded = FALSE
	`
	return affectedOne(r.db.ExecContext(ctx, query, id))
}

// ListByUser returns latest payments for user.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p            models.Payment
		referenceID  sql.NullInt64
		gatewayTxnID sql.NullString
		expiresAt    sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.TxnRef,
		&p.Amount,
		&p.Type,
		&p.Method,
		&referenceID,
		&p.UserID,
		&p.Status,
		&p.Description,
		&gatewayTxnID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&expiresAt,
		&p.Refunded,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if referenceID.Valid {
		p.ReferenceID = &referenceID.Int64
	}
	if gatewayTxnID.Valid {
		p.GatewayTxnID = &gatewayTxnID.String
	}
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Time
	}
	return &p, nil
}
