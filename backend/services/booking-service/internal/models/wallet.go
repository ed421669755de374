package models

import "time"

// Wallet holds a user's prepaid balance.
type Wallet struct {
	UserID    int64     `db:"user_id" json:"userId"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
