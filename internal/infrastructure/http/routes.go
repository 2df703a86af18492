package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is the quote API with its parameters already bound.
type ServerInterface interface {
	// (POST /quotes/{pair}/update)
	RequestQuoteUpdate(w http.ResponseWriter, r *http.Request, pair string, params RequestQuoteUpdateParams)
	// (GET /quotes/{pair})
	GetLastQuote(w http.ResponseWriter, r *http.Request, pair string)
	// (GET /quotes/{pair}/update/{update_id})
	GetQuoteUpdate(w http.ResponseWriter, r *http.Request, pair string, updateID string)
}

type RequestQuoteUpdateParams struct {
	XIdempotencyKey *string
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

type TooManyValuesForParamError struct {
	ParamName string
	Count     int
}

func (e *TooManyValuesForParamError) Error() string {
	return fmt.Sprintf("expected one value for %s, got %d", e.ParamName, e.Count)
}

// serverInterfaceWrapper binds path and header parameters before calling the handler.
type serverInterfaceWrapper struct {
	handler          ServerInterface
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func pathParam(r *http.Request, name string, dest *string) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return &InvalidParamFormatError{ParamName: name, Err: err}
	}
	return nil
}

func (siw *serverInterfaceWrapper) RequestQuoteUpdate(w http.ResponseWriter, r *http.Request) {
	var pair string
	if err := pathParam(r, "pair", &pair); err != nil {
		siw.errorHandlerFunc(w, r, err)
		return
	}

	var params RequestQuoteUpdateParams
	if values, found := r.Header[http.CanonicalHeaderKey(idempotencyHeader)]; found {
		if n := len(values); n != 1 {
			siw.errorHandlerFunc(w, r, &TooManyValuesForParamError{ParamName: idempotencyHeader, Count: n})
			return
		}
		var key string
		err := runtime.BindStyledParameterWithOptions("simple", idempotencyHeader, values[0], &key,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationHeader, Explode: false, Required: false})
		if err != nil {
			siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: idempotencyHeader, Err: err})
			return
		}
		if key != "" {
			params.XIdempotencyKey = &key
		}
	}

	siw.handler.RequestQuoteUpdate(w, r, pair, params)
}

func (siw *serverInterfaceWrapper) GetLastQuote(w http.ResponseWriter, r *http.Request) {
	var pair string
	if err := pathParam(r, "pair", &pair); err != nil {
		siw.errorHandlerFunc(w, r, err)
		return
	}
	siw.handler.GetLastQuote(w, r, pair)
}

func (siw *serverInterfaceWrapper) GetQuoteUpdate(w http.ResponseWriter, r *http.Request) {
	var pair, updateID string
	if err := pathParam(r, "pair", &pair); err != nil {
		siw.errorHandlerFunc(w, r, err)
		return
	}
	if err := pathParam(r, "update_id", &updateID); err != nil {
		siw.errorHandlerFunc(w, r, err)
		return
	}
	siw.handler.GetQuoteUpdate(w, r, pair, updateID)
}

// mountQuoteRoutes registers the quote API on r. Binding errors go to errorHandler.
func mountQuoteRoutes(r chi.Router, si ServerInterface, errorHandler func(w http.ResponseWriter, r *http.Request, err error)) {
	wrapper := &serverInterfaceWrapper{handler: si, errorHandlerFunc: errorHandler}
	r.Post("/quotes/{pair}/update", wrapper.RequestQuoteUpdate)
	r.Get("/quotes/{pair}", wrapper.GetLastQuote)
	r.Get("/quotes/{pair}/update/{update_id}", wrapper.GetQuoteUpdate)
}
