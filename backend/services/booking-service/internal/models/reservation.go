package models

import "time"

// ReservationStatus is a state of the reservation lifecycle.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationScheduled ReservationStatus = "SCHEDULED"
	ReservationVerifying ReservationStatus = "VERIFYING"
	ReservationVerified  ReservationStatus = "VERIFIED"
	ReservationPlugged   ReservationStatus = "PLUGGED"
	ReservationCharging  ReservationStatus = "CHARGING"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// ActiveReservationStatuses block the slot for overlap purposes.
var ActiveReservationStatuses = []ReservationStatus{
	ReservationPending,
	ReservationScheduled,
	ReservationVerifying,
	ReservationVerified,
	ReservationPlugged,
	ReservationCharging,
}

// SweepableStatuses are re-evaluated by every sweep pass.
var SweepableStatuses = []ReservationStatus{
	ReservationPending,
	ReservationScheduled,
	ReservationVerifying,
	ReservationVerified,
	ReservationPlugged,
}

// Terminal reports whether no further transition is possible.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationCompleted, ReservationExpired, ReservationCancelled:
		return true
	}
	return false
}

// Reservation is a time-boxed hold on a connector.
type Reservation struct {
	ID          int64             `db:"id" json:"reservationId"`
	UserID      int64             `db:"user_id" json:"userId"`
	StationID   int64             `db:"station_id" json:"stationId"`
	PillarID    int64             `db:"pillar_id" json:"pillarId"`
	ConnectorID int64             `db:"connector_id" json:"connectorId"`
	StartTime   time.Time         `db:"start_time" json:"startTime"`
	EndTime     time.Time         `db:"end_time" json:"endTime"`
	Status      ReservationStatus `db:"status" json:"status"`
	HoldFee     int64             `db:"hold_fee" json:"holdFee"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updatedAt"`
	ExpiredAt   time.Time         `db:"expired_at" json:"expiredAt"`
}

// Blocks reports whether r occupies [start, expiredAt) against a candidate window.
func (r *Reservation) Blocks(start, paddedEnd time.Time) bool {
	return r.StartTime.Before(paddedEnd) && r.ExpiredAt.After(start)
}
