package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
)

// CatalogRepository reads the station catalog tables and writes connector occupancy and
// vehicle state of charge.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository returns repository.
func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetPillar returns pillar by id.
func (r *CatalogRepository) GetPillar(ctx context.Context, id int64) (*models.Pillar, error) {
	var p models.Pillar
	err := r.db.QueryRowContext(ctx, `SELECT id, station_id, price_per_kwh FROM pillars WHERE id = $1`, id).
		Scan(&p.ID, &p.StationID, &p.PricePerKWh)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetConnector returns connector by id.
func (r *CatalogRepository) GetConnector(ctx context.Context, id int64) (*models.Connector, error) {
	var c models.Connector
	err := r.db.QueryRowContext(ctx, `SELECT id, pillar_id, status FROM connectors WHERE id = $1`, id).
		Scan(&c.ID, &c.PillarID, &c.Status)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// SetConnectorStatus writes the occupancy flag; repeating the current value changes nothing.
func (r *CatalogRepository) SetConnectorStatus(ctx context.Context, id int64, status models.ConnectorStatus) error {
	const query = `
		UPDATE connectors
		SET status = $2
		WHERE id = $1 AND status <> $2
	`
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

// GetVehicle returns vehicle by id.
func (r *CatalogRepository) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	var v models.Vehicle
	err := r.db.QueryRowContext(ctx, `SELECT id, owner_id, battery_capacity_kwh, current_soc FROM vehicles WHERE id = $1`, id).
		Scan(&v.ID, &v.OwnerID, &v.BatteryCapacityKWh, &v.CurrentSoc)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// UpdateVehicleSoc records the vehicle's state of charge.
func (r *CatalogRepository) UpdateVehicleSoc(ctx context.Context, id int64, soc float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE vehicles SET current_soc = $2 WHERE id = $1`, id, soc)
	return err
}

// SubscriptionRepository answers plan lookups.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository returns repository.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ActivePlan returns the plan active at the given time, or "".
func (r *SubscriptionRepository) ActivePlan(ctx context.Context, userID int64, at time.Time) (string, error) {
	var plan string
	err := r.db.QueryRowContext(ctx, `SELECT plan FROM subscriptions WHERE user_id = $1 AND active_until > $2`, userID, at).Scan(&plan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return plan, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
