package domain

import "fmt"

type QuoteUpdateStatus string

const (
	QuoteUpdateStatusQueued     QuoteUpdateStatus = "queued"
	QuoteUpdateStatusProcessing QuoteUpdateStatus = "processing"
	QuoteUpdateStatusDone       QuoteUpdateStatus = "done"
	QuoteUpdateStatusFailed     QuoteUpdateStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s QuoteUpdateStatus) Terminal() bool {
	return s == QuoteUpdateStatusDone || s == QuoteUpdateStatusFailed
}

// ParseQuoteUpdateStatus accepts only the known statuses.
func ParseQuoteUpdateStatus(s string) (QuoteUpdateStatus, error) {
	switch st := QuoteUpdateStatus(s); st {
	case QuoteUpdateStatusQueued, QuoteUpdateStatusProcessing, QuoteUpdateStatusDone, QuoteUpdateStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}
