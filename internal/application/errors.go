package application

import "errors"

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")
var ErrBadRequest = errors.New("bad request")

// ProviderError is a rate provider failure whose Reason may be shown to API
// clients. Err holds the detail and is only logged.
type ProviderError struct {
	Reason string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrReservationLost means an idempotency reservation expired or was taken
// over before it could be committed.
var ErrReservationLost = errors.New("idempotency reservation lost")
