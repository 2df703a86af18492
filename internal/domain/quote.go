package domain

import "time"

// Quote is a price returned by a rate provider.
type Quote struct {
	Pair     Pair
	Price    float64
	QuotedAt time.Time
}
