// Package memory is an in-process store. Every operation holds a single mutex, which
// gives the same atomicity as the Postgres row locks and conditional updates.
// It backs the service, worker and HTTP tests; the binary wires the Postgres
// repositories, which have their own integration tests.
package memory

import (
	"sync"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
)

// Store holds all rows. Use the accessor methods to get typed repositories.
type Store struct {
	mu sync.Mutex

	reservations  map[int64]*models.Reservation
	tokens        map[int64]*models.CheckInToken
	sessions      map[int64]*models.ChargingSession
	payments      map[int64]*models.Payment
	wallets       map[int64]*models.Wallet
	pillars       map[int64]*models.Pillar
	connectors    map[int64]*models.Connector
	vehicles      map[int64]*models.Vehicle
	subscriptions map[int64]*models.Subscription

	seq int64
	now func() time.Time

	// failTransition makes Transition fail for the given reservation ids.
	failTransition map[int64]error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		reservations:   make(map[int64]*models.Reservation),
		tokens:         make(map[int64]*models.CheckInToken),
		sessions:       make(map[int64]*models.ChargingSession),
		payments:       make(map[int64]*models.Payment),
		wallets:        make(map[int64]*models.Wallet),
		pillars:        make(map[int64]*models.Pillar),
		connectors:     make(map[int64]*models.Connector),
		vehicles:       make(map[int64]*models.Vehicle),
		subscriptions:  make(map[int64]*models.Subscription),
		failTransition: make(map[int64]error),
		now:            time.Now,
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// Reservations returns the reservation repository.
func (s *Store) Reservations() *ReservationRepo { return &ReservationRepo{s: s} }

// CheckIns returns the check-in token repository.
func (s *Store) CheckIns() *CheckInRepo { return &CheckInRepo{s: s} }

// Sessions returns the charging session repository.
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s: s} }

// Payments returns the payment repository.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }

// Wallets returns the wallet repository.
func (s *Store) Wallets() *WalletRepo { return &WalletRepo{s: s} }

// Catalog returns the catalog repository.
func (s *Store) Catalog() *CatalogRepo { return &CatalogRepo{s: s} }

// Subscriptions returns the subscription lookup.
func (s *Store) Subscriptions() *SubscriptionRepo { return &SubscriptionRepo{s: s} }

// FailTransitionsFor makes every Transition on the reservation return err. Pass nil to clear.
func (s *Store) FailTransitionsFor(reservationID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failTransition, reservationID)
		return
	}
	s.failTransition[reservationID] = err
}

// SetClock replaces the clock used for created and updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
