package domain

import "time"

// IdempotencyRecord binds a client key to the update it produced.
// A key belongs to exactly one pair while the record exists. A pending
// record is reserved but its update is not stored yet.
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	Pair      Pair      `json:"pair"`
	UpdateID  string    `json:"update_id"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending,omitempty"`
}
