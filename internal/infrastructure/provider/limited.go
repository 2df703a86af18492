package provider

import (
	"context"
	"fmt"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"

	"golang.org/x/time/rate"
)

var _ application.RateProvider = (*Limited)(nil)

// Limited throttles calls to the wrapped provider. Callers wait for a token
// until their context is done.
type Limited struct {
	next    application.RateProvider
	limiter *rate.Limiter
}

func NewLimited(next application.RateProvider, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Get(ctx context.Context, pair domain.Pair) (domain.Quote, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return domain.Quote{}, fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Get(ctx, pair)
}
