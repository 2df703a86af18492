package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"
	"quotes-service/internal/infrastructure/httpx"
)

const (
	exchangeRatesLatestPath = "/v1/latest"
)

type ExchangeRatesAPIProvider struct {
	BaseURL string
	APIKey  string
	Client  *httpx.Client
}

var _ application.RateProvider = (*ExchangeRatesAPIProvider)(nil)

type xrLatestResp struct {
	Success   bool               `json:"success"`
	Timestamp int64              `json:"timestamp"`
	Base      string             `json:"base"`
	Date      string             `json:"date"`
	Rates     map[string]float64 `json:"rates"`
	Error     *struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error,omitempty"`
}

func (p *ExchangeRatesAPIProvider) Get(ctx context.Context, pair domain.Pair) (domain.Quote, error) {
	if p.BaseURL == "" || p.APIKey == "" {
		return domain.Quote{}, providerError("missing configuration", nil)
	}
	baseCur, quoteCur := pair.Base(), pair.Quote()

	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("exchangeratesapi: invalid base url: %w", err)
	}
	u.Path = exchangeRatesLatestPath
	q := u.Query()
	q.Set("access_key", p.APIKey)
	q.Set("symbols", baseCur+","+quoteCur)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.Quote{}, providerError("create request", nil)
	}

	client := p.Client
	if client == nil {
		client = &httpx.Client{}
	}
	var body xrLatestResp
	if err := client.DoJSON(ctx, req, &body); err != nil {
		return domain.Quote{}, fetchError(err)
	}
	if !body.Success {
		if body.Error != nil {
			return domain.Quote{}, providerError(fmt.Sprintf("%d %s", body.Error.Code, body.Error.Info), nil)
		}
		return domain.Quote{}, providerError("unsuccessful response", nil)
	}

	// rates are quoted against body.Base (EUR on the free plan)
	rateOf := func(c string) (float64, error) {
		if c == body.Base {
			return 1.0, nil
		}
		v, ok := body.Rates[c]
		if !ok {
			return 0, providerError("missing rate for "+c, nil)
		}
		return v, nil
	}
	baseRate, err := rateOf(baseCur)
	if err != nil {
		return domain.Quote{}, err
	}
	quoteRate, err := rateOf(quoteCur)
	if err != nil {
		return domain.Quote{}, err
	}
	if baseRate == 0 {
		return domain.Quote{}, providerError("zero rate for base currency", nil)
	}

	quotedAt := time.Now().UTC()
	if body.Timestamp > 0 {
		quotedAt = time.Unix(body.Timestamp, 0).UTC()
	}
	return domain.Quote{
		Pair:     pair,
		Price:    quoteRate / baseRate,
		QuotedAt: quotedAt,
	}, nil
}

func providerError(reason string, err error) error {
	return &application.ProviderError{Reason: "exchangeratesapi: " + reason, Err: err}
}

// fetchError keeps the public reason free of URLs, which carry the access key.
func fetchError(err error) error {
	var se *httpx.StatusError
	switch {
	case errors.As(err, &se):
		return providerError(fmt.Sprintf("upstream status %d", se.Code), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return providerError("request timed out", err)
	default:
		return providerError("request failed", err)
	}
}
