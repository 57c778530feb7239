package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop-api/internal/domain/cart"
	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/domain/product"
)

// writeError writes {"code", "message", "field"?}.
func writeError(w http.ResponseWriter, status int, msg, field string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		if field != "" {
			e.FieldStart("field")
			e.Str(field)
		}
		e.ObjEnd()
	})
}

// fail maps a domain error to its HTTP response. Unknown errors are logged
// and hidden behind a 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr   *requestError
		inputErr *cart.InputError
		valErr   *discount.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.Err.Error(), reqErr.Field)
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Reason, inputErr.Field)
	case errors.As(err, &valErr):
		writeError(w, http.StatusUnprocessableEntity, valErr.Err.Error(), valErr.Field)
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, discount.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, discount.ErrExhausted),
		errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, cart.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, cart.ErrConflict.Error(), "")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", "")
	}
}
