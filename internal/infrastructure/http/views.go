package httpserver

import (
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"
)

type receiptView struct {
	ID             string    `json:"id"`
	Pair           string    `json:"pair"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

func toReceiptView(r application.UpdateReceipt) receiptView {
	return receiptView{
		ID:             r.ID,
		Pair:           string(r.Pair),
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
	}
}

type updateView struct {
	ID             string     `json:"id"`
	Pair           string     `json:"pair"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         string     `json:"status"`
	Price          *float64   `json:"price"`
	QuotedAt       *time.Time `json:"quoted_at,omitempty"`
	Error          *string    `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toUpdateView(u domain.QuoteUpdate) updateView {
	return updateView{
		ID:             u.ID,
		Pair:           string(u.Pair),
		IdempotencyKey: u.IdempotencyKey,
		Status:         string(u.Status),
		Price:          u.Price,
		QuotedAt:       u.QuotedAt,
		Error:          u.Error,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}
