package models

import "time"

// SessionStatus of a charging session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
)

// ChargingSession accumulates energy and cost between start and stop.
type ChargingSession struct {
	ID            int64         `db:"id" json:"sessionId"`
	ReservationID *int64        `db:"reservation_id" json:"reservationId,omitempty"`
	StationID     int64         `db:"station_id" json:"stationId"`
	PillarID      int64         `db:"pillar_id" json:"pillarId"`
	ConnectorID   int64         `db:"connector_id" json:"connectorId"`
	DriverID      int64         `db:"driver_id" json:"driverId"`
	VehicleID     int64         `db:"vehicle_id" json:"vehicleId"`
	StartTime     time.Time     `db:"start_time" json:"startTime"`
	EndTime       *time.Time    `db:"end_time" json:"endTime,omitempty"`
	Status        SessionStatus `db:"status" json:"status"`
	EnergyKWh     float64       `db:"energy_kwh" json:"energyKwh"`
	Amount        int64         `db:"amount" json:"chargedAmount"`
	RatePerKWh    int64         `db:"rate_per_kwh" json:"ratePerKwh"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"paymentMethod"`
	TargetSoc     *float64      `db:"target_soc" json:"targetSoc,omitempty"`
	Paid          bool          `db:"paid" json:"paid"`
	PaymentID     *int64        `db:"payment_id" json:"paymentId,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
}
