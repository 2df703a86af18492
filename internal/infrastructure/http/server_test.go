package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct{ mock.Mock }

func (m *MockService) RequestUpdate(ctx context.Context, pair, key string) (application.UpdateReceipt, bool, error) {
	args := m.Called(ctx, pair, key)
	r, _ := args.Get(0).(application.UpdateReceipt)
	return r, args.Bool(1), args.Error(2)
}

func (m *MockService) GetLatest(ctx context.Context, pair string) (domain.QuoteUpdate, error) {
	args := m.Called(ctx, pair)
	u, _ := args.Get(0).(domain.QuoteUpdate)
	return u, args.Error(1)
}

func (m *MockService) GetUpdate(ctx context.Context, pair, id string) (domain.QuoteUpdate, error) {
	args := m.Called(ctx, pair, id)
	u, _ := args.Get(0).(domain.QuoteUpdate)
	return u, args.Error(1)
}

var created = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func receipt() application.UpdateReceipt {
	return application.UpdateReceipt{ID: "u-1", Pair: "EUR_USD", IdempotencyKey: "k1", CreatedAt: created}
}

func serve(t *testing.T, svc QuoteService, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	NewRouter(NewServer(svc)).ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Equal(t, rec.Code, e.Code)
	return e
}

func TestRequestQuoteUpdate_Created(t *testing.T) {
	svc := new(MockService)
	svc.On("RequestUpdate", mock.Anything, "EUR_USD", "k1").Return(receipt(), false, nil).Once()

	rec := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", `{"idempotency_key":"k1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(replayedHeader))
	require.JSONEq(t, `{"id":"u-1","pair":"EUR_USD","idempotency_key":"k1","created_at":"2025-01-02T03:04:05Z"}`, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestRequestQuoteUpdate_Replay(t *testing.T) {
	svc := new(MockService)
	svc.On("RequestUpdate", mock.Anything, "EUR_USD", "k1").Return(receipt(), false, nil).Once()
	svc.On("RequestUpdate", mock.Anything, "EUR_USD", "k1").Return(receipt(), true, nil).Once()

	first := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", `{"idempotency_key":"k1"}`, nil)
	second := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", `{"idempotency_key":"k1"}`, nil)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get(replayedHeader))
	require.Equal(t, first.Body.String(), second.Body.String())
	svc.AssertExpectations(t)
}

func TestRequestQuoteUpdate_KeySources(t *testing.T) {
	t.Run("header fallback", func(t *testing.T) {
		svc := new(MockService)
		svc.On("RequestUpdate", mock.Anything, "EUR_USD", "hk").Return(receipt(), false, nil).Once()
		rec := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", "", map[string]string{idempotencyHeader: "hk"})
		require.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
	t.Run("header and body agree", func(t *testing.T) {
		svc := new(MockService)
		svc.On("RequestUpdate", mock.Anything, "EUR_USD", "k1").Return(receipt(), false, nil).Once()
		rec := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", `{"idempotency_key":"k1"}`, map[string]string{idempotencyHeader: "k1"})
		require.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
	t.Run("header and body differ", func(t *testing.T) {
		svc := new(MockService)
		rec := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", `{"idempotency_key":"k1"}`, map[string]string{idempotencyHeader: "k2"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "RequestUpdate", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRequestQuoteUpdate_BadBody(t *testing.T) {
	for _, body := range []string{`{`, `{"idempotency_key": 12}`, `[]`} {
		svc := new(MockService)
		rec := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", body, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		e := decodeError(t, rec)
		require.Equal(t, "invalid JSON body", e.Message)
		svc.AssertNotCalled(t, "RequestUpdate", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestRequestQuoteUpdate_TooLarge(t *testing.T) {
	svc := new(MockService)
	body := `{"idempotency_key":"` + strings.Repeat("k", 8<<10) + `"}`
	rec := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestQuoteUpdate_ErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"bad pair", fmt.Errorf("%w: %w", application.ErrBadRequest, domain.ErrInvalidPair), http.StatusBadRequest, domain.ErrInvalidPair.Error()},
		{"conflict", fmt.Errorf("%w: idempotency key already used for EUR_MXN", application.ErrConflict), http.StatusConflict, "idempotency key already used for EUR_MXN"},
		{"internal", errors.New("db exploded"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("RequestUpdate", mock.Anything, "EUR_USD", "k1").Return(nil, false, tc.err).Once()
			rec := serve(t, svc, http.MethodPost, "/quotes/EUR_USD/update", `{"idempotency_key":"k1"}`, nil)
			require.Equal(t, tc.code, rec.Code)
			require.Equal(t, tc.message, decodeError(t, rec).Message)
		})
	}
}

func TestGetLastQuote(t *testing.T) {
	price := 1.0842
	quoted := created.Add(time.Minute)
	svc := new(MockService)
	svc.On("GetLatest", mock.Anything, "EUR_USD").Return(domain.QuoteUpdate{
		ID: "u-1", Pair: "EUR_USD", IdempotencyKey: "k1", Status: domain.QuoteUpdateStatusDone,
		Price: &price, QuotedAt: &quoted, CreatedAt: created, UpdatedAt: quoted,
	}, nil).Once()
	svc.On("GetLatest", mock.Anything, "USD_MXN").Return(nil, application.ErrNotFound).Once()

	rec := serve(t, svc, http.MethodGet, "/quotes/EUR_USD", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"id":"u-1","pair":"EUR_USD","idempotency_key":"k1","status":"done","price":1.0842,
		"quoted_at":"2025-01-02T03:05:05Z","created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:05:05Z"
	}`, rec.Body.String())

	rec = serve(t, svc, http.MethodGet, "/quotes/USD_MXN", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	decodeError(t, rec)
	svc.AssertExpectations(t)
}

func TestGetQuoteUpdate(t *testing.T) {
	svc := new(MockService)
	svc.On("GetUpdate", mock.Anything, "EUR_USD", "u-1").Return(domain.QuoteUpdate{
		ID: "u-1", Pair: "EUR_USD", IdempotencyKey: "k1", Status: domain.QuoteUpdateStatusQueued,
		CreatedAt: created, UpdatedAt: created,
	}, nil).Once()
	svc.On("GetUpdate", mock.Anything, "EUR_USD", "missing").Return(nil, application.ErrNotFound).Once()

	rec := serve(t, svc, http.MethodGet, "/quotes/EUR_USD/update/u-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"id":"u-1","pair":"EUR_USD","idempotency_key":"k1","status":"queued","price":null,
		"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:05Z"
	}`, rec.Body.String())

	rec = serve(t, svc, http.MethodGet, "/quotes/EUR_USD/update/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}
