package models

import "time"

// ConnectorStatus is the physical occupancy flag.
type ConnectorStatus string

const (
	ConnectorAvailable ConnectorStatus = "AVAILABLE"
	ConnectorOccupied  ConnectorStatus = "OCCUPIED"
)

// Pillar is a charging post grouping connectors.
type Pillar struct {
	ID          int64 `db:"id" json:"id"`
	StationID   int64 `db:"station_id" json:"stationId"`
	PricePerKWh int64 `db:"price_per_kwh" json:"pricePerKwh"`
}

// Connector is the plug a vehicle attaches to.
type Connector struct {
	ID       int64           `db:"id" json:"id"`
	PillarID int64           `db:"pillar_id" json:"pillarId"`
	Status   ConnectorStatus `db:"status" json:"status"`
}

// Vehicle owned by a driver.
type Vehicle struct {
	ID                 int64   `db:"id" json:"id"`
	OwnerID            int64   `db:"owner_id" json:"ownerId"`
	BatteryCapacityKWh float64 `db:"battery_capacity_kwh" json:"batteryCapacityKwh"`
	CurrentSoc         float64 `db:"current_soc" json:"currentSoc"`
}

// Subscription plan names that affect the hold fee.
const (
	PlanPremium = "premium"
	PlanPro     = "pro"
)

// Subscription is a user's membership plan.
type Subscription struct {
	UserID      int64     `db:"user_id" json:"userId"`
	Plan        string    `db:"plan" json:"plan"`
	ActiveUntil time.Time `db:"active_until" json:"activeUntil"`
}
