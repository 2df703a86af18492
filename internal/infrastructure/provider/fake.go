package provider

import (
	"context"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"
)

// Ensure Fake implements application.RateProvider.
var _ application.RateProvider = (*Fake)(nil)

type Fake struct {
	price float64
}

func NewFake(price float64) *Fake { return &Fake{price: price} }

func (f *Fake) Get(_ context.Context, pair domain.Pair) (domain.Quote, error) {
	return domain.Quote{
		Pair:     pair,
		Price:    f.price,
		QuotedAt: time.Now().UTC(),
	}, nil
}
