package models

import (
	"fmt"
	"strings"
	"time"
)

// PaymentType selects what a payment settles.
type PaymentType string

const (
	PaymentReservationHold PaymentType = "RESERVATION_HOLD"
	PaymentWalletTopup     PaymentType = "WALLET_TOPUP"
	PaymentSessionCharge   PaymentType = "SESSION_CHARGE"
	PaymentMembership      PaymentType = "MEMBERSHIP"
)

// PaymentMethod selects the settlement path.
type PaymentMethod string

const (
	MethodLedger  PaymentMethod = "LEDGER"
	MethodCash    PaymentMethod = "CASH"
	MethodGateway PaymentMethod = "GATEWAY"
)

// PaymentStatus of a transaction.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// ParsePaymentType accepts the enum name in any case.
func ParsePaymentType(raw string) (PaymentType, error) {
	switch t := PaymentType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case PaymentReservationHold, PaymentWalletTopup, PaymentSessionCharge, PaymentMembership:
		return t, nil
	}
	return "", fmt.Errorf("unknown payment type %q", raw)
}

// ParsePaymentMethod accepts the enum name in any case.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))); m {
	case MethodLedger, MethodCash, MethodGateway:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}

// Payment is a settlement intent and its outcome.
type Payment struct {
	ID           int64         `db:"id" json:"paymentId"`
	TxnRef       string        `db:"txn_ref" json:"txnRef"`
	Amount       int64         `db:"amount" json:"amount"`
	Type         PaymentType   `db:"type" json:"type"`
	Method       PaymentMethod `db:"method" json:"method"`
	ReferenceID  *int64        `db:"reference_id" json:"referenceId,omitempty"`
	UserID       int64         `db:"user_id" json:"userId"`
	Status       PaymentStatus `db:"status" json:"status"`
	Description  string        `db:"description" json:"description,omitempty"`
	GatewayTxnID *string       `db:"gateway_txn_id" json:"gatewayTxnId,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
	ExpiresAt    *time.Time    `db:"expires_at" json:"expiresAt,omitempty"`
	// Refunded is set once the amount has been credited back to the wallet.
	Refunded bool `db:"refunded" json:"refunded,omitempty"`
}

// PaymentTarget is what a payment's reference id points at, resolved by its type.
type PaymentTarget interface {
	paymentTarget()
}

// ReservationTarget is settled by a RESERVATION_HOLD payment.
type ReservationTarget struct{ ReservationID int64 }

// SessionTarget is settled by a SESSION_CHARGE payment.
type SessionTarget struct{ SessionID int64 }

// MembershipTarget is settled by a MEMBERSHIP payment.
type MembershipTarget struct{ MembershipID int64 }

// WalletTopupTarget carries no reference.
type WalletTopupTarget struct{}

func (ReservationTarget) paymentTarget() {}
func (SessionTarget) paymentTarget()     {}
func (MembershipTarget) paymentTarget()  {}
func (WalletTopupTarget) paymentTarget() {}

// Target resolves the polymorphic reference id.
func (p *Payment) Target() (PaymentTarget, error) {
	if p.Type == PaymentWalletTopup {
		return WalletTopupTarget{}, nil
	}
	if p.ReferenceID == nil {
		return nil, fmt.Errorf("payment type %s requires a reference id", p.Type)
	}
	switch p.Type {
	case PaymentReservationHold:
		return ReservationTarget{ReservationID: *p.ReferenceID}, nil
	case PaymentSessionCharge:
		return SessionTarget{SessionID: *p.ReferenceID}, nil
	case PaymentMembership:
		return MembershipTarget{MembershipID: *p.ReferenceID}, nil
	}
	return nil, fmt.Errorf("unknown payment type %q", p.Type)
}
