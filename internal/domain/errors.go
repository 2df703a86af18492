package domain

import "errors"

var (
	ErrInvalidPair     = errors.New("invalid pair")
	ErrUnsupportedPair = errors.New("unsupported pair")
	ErrUnknownStatus   = errors.New("unknown quote update status")
)
