package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"
	infraconfig "quotes-service/internal/infrastructure/config"
	"quotes-service/internal/infrastructure/logx"

	"go.uber.org/zap"
)

const (
	idempotencyHeader = "X-Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// QuoteService is the application surface served over HTTP.
type QuoteService interface {
	RequestUpdate(ctx context.Context, pair, key string) (application.UpdateReceipt, bool, error)
	GetLatest(ctx context.Context, pair string) (domain.QuoteUpdate, error)
	GetUpdate(ctx context.Context, pair, id string) (domain.QuoteUpdate, error)
}

type Server struct {
	svc  QuoteService
	ping func(ctx context.Context) error
}

func NewServer(svc QuoteService) *Server { return &Server{svc: svc} }

// SetReadyCheck installs the check behind /readyz.
func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }

type updateRequest struct {
	IdempotencyKey *string `json:"idempotency_key"`
}

var _ ServerInterface = (*Server)(nil)

func (s *Server) RequestQuoteUpdate(w http.ResponseWriter, r *http.Request, pair string, params RequestQuoteUpdateParams) {
	r.Body = http.MaxBytesReader(w, r.Body, infraconfig.MaxRequestBody)
	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body")
		return
	}

	var key string
	if params.XIdempotencyKey != nil {
		key = *params.XIdempotencyKey
	}
	if body.IdempotencyKey != nil {
		if key != "" && key != *body.IdempotencyKey {
			badRequest(w, "idempotency key in header and body differ")
			return
		}
		key = *body.IdempotencyKey
	}

	receipt, replayed, err := s.svc.RequestUpdate(r.Context(), pair, key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set(replayedHeader, "true")
	}
	writeJSON(w, http.StatusOK, toReceiptView(receipt))
}

func (s *Server) GetLastQuote(w http.ResponseWriter, r *http.Request, pair string) {
	u, err := s.svc.GetLatest(r.Context(), pair)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUpdateView(u))
}

func (s *Server) GetQuoteUpdate(w http.ResponseWriter, r *http.Request, pair, updateID string) {
	u, err := s.svc.GetUpdate(r.Context(), pair, updateID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUpdateView(u))
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

// writeServiceError maps application errors to statuses. The message of a
// client error is the innermost cause, never internal detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, application.ErrBadRequest):
		badRequest(w, clientMessage(err, application.ErrBadRequest))
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	case errors.Is(err, application.ErrConflict):
		writeError(w, http.StatusConflict, clientMessage(err, application.ErrConflict))
	default:
		logx.WithFields(r.Context()).Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func clientMessage(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}
