package models

// Notification types.
const (
	NotifyReservationConfirmed = "RESERVATION_CONFIRMED"
	NotifyWalletCredited       = "WALLET_CREDITED"
	NotifySessionPaid          = "SESSION_PAID"
	NotifyMembershipRenewed    = "MEMBERSHIP_RENEWED"
	NotifyCashPaymentPending   = "CASH_PAYMENT_PENDING"
	NotifyPaymentRefunded      = "PAYMENT_REFUNDED"
)

// Notification is a fire-and-forget message for a user or station staff.
// StationID is set for staff-facing messages.
type Notification struct {
	UserID    int64  `json:"userId"`
	StationID int64  `json:"stationId,omitempty"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}
