package application

import (
	"context"

	"quotes-service/internal/domain"
)

// IdempotencyStore binds client keys to the update they produced.
type IdempotencyStore interface {
	// Reserve stores rec if its key is free and returns (rec, true).
	// If the key is taken it returns the stored record and false.
	// The check and the write are atomic per key.
	Reserve(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, bool, error)
	// Commit clears the pending mark of a record reserved by rec once its
	// update is stored.
	Commit(ctx context.Context, rec domain.IdempotencyRecord) error
	// Release drops the key only while it still points at rec.UpdateID.
	Release(ctx context.Context, rec domain.IdempotencyRecord) error
}
