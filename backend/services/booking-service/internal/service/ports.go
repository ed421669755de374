package service

import (
	"context"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
)

// ReservationStore persists reservations. Transition is a compare-and-set on status.
type ReservationStore interface {
	// CreateIfNoOverlap inserts r unless an active reservation on the same pillar blocks
	// [r.StartTime, r.ExpiredAt). On conflict it returns the blocking reservation and inserts nothing.
	CreateIfNoOverlap(ctx context.Context, r *models.Reservation) (*models.Reservation, error)
	Get(ctx context.Context, id int64) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Reservation, error)
	ListByStatuses(ctx context.Context, statuses []models.ReservationStatus) ([]models.Reservation, error)
	Transition(ctx context.Context, id int64, from, to models.ReservationStatus) (bool, error)
}

// CatalogStore exposes the station catalog owned by another system.
type CatalogStore interface {
	GetPillar(ctx context.Context, id int64) (*models.Pillar, error)
	GetConnector(ctx context.Context, id int64) (*models.Connector, error)
	SetConnectorStatus(ctx context.Context, id int64, status models.ConnectorStatus) error
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	UpdateVehicleSoc(ctx context.Context, id int64, soc float64) error
}

// SubscriptionLookup returns the user's active plan name or "" when there is none.
type SubscriptionLookup interface {
	ActivePlan(ctx context.Context, userID int64, at time.Time) (string, error)
}

// CheckInStore persists check-in tokens.
type CheckInStore interface {
	// Replace deletes unconsumed tokens of the reservation and inserts token.
	Replace(ctx context.Context, token *models.CheckInToken) error
	GetByToken(ctx context.Context, token string) (*models.CheckInToken, error)
	// Consume marks the token used and moves the reservation VERIFYING -> VERIFIED as one step.
	Consume(ctx context.Context, tokenID, reservationID int64, now time.Time) (models.ConsumeResult, error)
}

// SessionStore persists charging sessions.
type SessionStore interface {
	Create(ctx context.Context, s *models.ChargingSession) error
	Get(ctx context.Context, id int64) (*models.ChargingSession, error)
	// UpdateMeter applies the reading only if the session is ACTIVE at prevEnergy.
	UpdateMeter(ctx context.Context, id int64, prevEnergy, energy float64, amount int64) (bool, error)
	Complete(ctx context.Context, id int64, end time.Time) (bool, error)
	MarkPaid(ctx context.Context, id, paymentID int64) (bool, error)
	ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.ChargingSession, error)
}

// PaymentStore persists payment transactions.
type PaymentStore interface {
	// CreateOrGetPending inserts p as PENDING unless a PENDING row with the same
	// (type, reference, user, amount) exists, in which case that row is returned.
	CreateOrGetPending(ctx context.Context, p *models.Payment) (*models.Payment, bool, error)
	FindPending(ctx context.Context, t models.PaymentType, referenceID *int64, userID, amount int64) (*models.Payment, error)
	Create(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, id int64) (*models.Payment, error)
	GetByTxnRef(ctx context.Context, txnRef string) (*models.Payment, error)
	// MarkSettled sets the final status unless the row is already SUCCESS.
	MarkSettled(ctx context.Context, id int64, status models.PaymentStatus, gatewayTxnID string) (bool, error)
	// DeletePending removes a PENDING row that never settled anything.
	DeletePending(ctx context.Context, id int64) error
	// MarkRefunded flags the payment as refunded; only the first call reports true.
	MarkRefunded(ctx context.Context, id int64) (bool, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Payment, error)
}

// WalletStore is the only writer of balances. Debit fails without writing when funds are short.
type WalletStore interface {
	Get(ctx context.Context, userID int64) (*models.Wallet, error)
	Debit(ctx context.Context, userID, amount int64) (bool, error)
	Credit(ctx context.Context, userID, amount int64) (*models.Wallet, error)
}

// Notifier delivers fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// PaymentGateway builds signed redirect URLs and verifies callbacks.
type PaymentGateway interface {
	PaymentURL(p *models.Payment, clientIP string) (string, error)
	Verify(params map[string]string) bool
}

// SessionCache keeps ACTIVE sessions for fast reads. Get returns nil, nil on a miss.
type SessionCache interface {
	Save(ctx context.Context, s *models.ChargingSession) error
	Get(ctx context.Context, id int64) (*models.ChargingSession, error)
	Delete(ctx context.Context, id int64) error
}

// SessionPublisher pushes session snapshots to live subscribers.
type SessionPublisher interface {
	Publish(s *models.ChargingSession)
}
