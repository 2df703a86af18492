package provider_test

import (
	"context"
	"testing"
	"time"

	"quotes-service/internal/domain"
	"quotes-service/internal/infrastructure/provider"

	"github.com/stretchr/testify/require"
)

func domainPair(s string) domain.Pair { return domain.Pair(s) }

func TestFake(t *testing.T) {
	q, err := provider.NewFake(1.5).Get(context.Background(), "EUR_USD")
	require.NoError(t, err)
	require.Equal(t, domain.Pair("EUR_USD"), q.Pair)
	require.InDelta(t, 1.5, q.Price, 1e-9)
	require.False(t, q.QuotedAt.IsZero())
}

func TestLimited_PassesThrough(t *testing.T) {
	l := provider.NewLimited(provider.NewFake(2), 1000, 5)
	for i := 0; i < 5; i++ {
		q, err := l.Get(context.Background(), "EUR_USD")
		require.NoError(t, err)
		require.InDelta(t, 2.0, q.Price, 1e-9)
	}
}

func TestLimited_WaitRespectsContext(t *testing.T) {
	l := provider.NewLimited(provider.NewFake(2), 0.001, 1)
	_, err := l.Get(context.Background(), "EUR_USD")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Get(ctx, "EUR_USD")
	require.Error(t, err)
	require.ErrorContains(t, err, "rate limit")
}
