package domain

import "time"

// QuoteUpdate is one submission of a quote request for a pair.
// ID, Pair, IdempotencyKey and CreatedAt never change after creation;
// the remaining fields carry the result filled in by the worker.
type QuoteUpdate struct {
	ID             string
	Pair           Pair
	IdempotencyKey string
	CreatedAt      time.Time

	Status    QuoteUpdateStatus
	Price     *float64
	QuotedAt  *time.Time
	Error     *string
	UpdatedAt time.Time
}
