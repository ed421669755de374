package memory

import (
	"context"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository"
)

// CatalogRepo is the in-memory station catalog.
type CatalogRepo struct {
	s *Store
}

// PutPillar stores a pillar.
func (r *CatalogRepo) PutPillar(p models.Pillar) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.pillars[p.ID] = &p
}

// PutConnector stores a connector.
func (r *CatalogRepo) PutConnector(c models.Connector) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.Status == "" {
		c.Status = models.ConnectorAvailable
	}
	r.s.connectors[c.ID] = &c
}

// PutVehicle stores a vehicle.
func (r *CatalogRepo) PutVehicle(v models.Vehicle) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.vehicles[v.ID] = &v
}

// GetPillar returns a pillar.
func (r *CatalogRepo) GetPillar(_ context.Context, id int64) (*models.Pillar, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.pillars[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	return &out, nil
}

// GetConnector returns a connector.
func (r *CatalogRepo) GetConnector(_ context.Context, id int64) (*models.Connector, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.connectors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	return &out, nil
}

// SetConnectorStatus sets the occupancy flag. Setting the current value is a no-op.
func (r *CatalogRepo) SetConnectorStatus(_ context.Context, id int64, status models.ConnectorStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.connectors[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	return nil
}

// GetVehicle returns a vehicle.
func (r *CatalogRepo) GetVehicle(_ context.Context, id int64) (*models.Vehicle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *v
	return &out, nil
}

// UpdateVehicleSoc records the vehicle's state of charge.
func (r *CatalogRepo) UpdateVehicleSoc(_ context.Context, id int64, soc float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.CurrentSoc = soc
	return nil
}

// SubscriptionRepo is the in-memory subscription lookup.
type SubscriptionRepo struct {
	s *Store
}

// Put stores a subscription.
func (r *SubscriptionRepo) Put(sub models.Subscription) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.subscriptions[sub.UserID] = &sub
}

// ActivePlan returns the plan active at the given time.
func (r *SubscriptionRepo) ActivePlan(_ context.Context, userID int64, at time.Time) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscriptions[userID]
	if !ok || !sub.ActiveUntil.After(at) {
		return "", nil
	}
	return sub.Plan, nil
}
