package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-api/internal/domain/discount"
)

// codeBody is the body of the create and update endpoints. Fields that carry
// no usable zero value track whether they were sent.
type codeBody struct {
	Title     string
	Code      string
	Type      discount.Type
	Value     decimal.Decimal
	ExpiredAt time.Time
	CanUses   int
	IsActive  bool

	hasValue, hasExpiry, hasUses, hasActive bool
}

func decodeCodeBody(w http.ResponseWriter, r *http.Request) (codeBody, error) {
	var b codeBody
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "title":
			b.Title, err = d.Str()
		case "code":
			b.Code, err = d.Str()
		case "discount_type":
			var s string
			s, err = d.Str()
			b.Type = discount.Type(s)
		case "discount_value":
			b.Value, err = decodeDecimal(d)
			b.hasValue = true
		case "expired_at":
			b.ExpiredAt, err = decodeTime(d)
			b.hasExpiry = true
		case "can_uses":
			b.CanUses, err = d.Int()
			b.hasUses = true
		case "is_active":
			b.IsActive, err = d.Bool()
			b.hasActive = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return b, err
	}
	switch {
	case !b.hasValue:
		return b, &requestError{Field: "discount_value", Err: errRequired}
	case !b.hasExpiry:
		return b, &requestError{Field: "expired_at", Err: errRequired}
	case !b.hasUses:
		return b, &requestError{Field: "can_uses", Err: errRequired}
	}
	return b, nil
}

// CreateDiscount serves POST /api/discounts.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	b, err := decodeCodeBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.discounts.Create(r.Context(), discount.CreateRequest{
		Title:     b.Title,
		Code:      b.Code,
		Type:      b.Type,
		Value:     b.Value,
		ExpiredAt: b.ExpiredAt,
		CanUses:   b.CanUses,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	st := discount.RefreshStatus(c, c.CreatedAt)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCode(e, c, &st) })
}

// UpdateDiscount serves PUT /api/discounts/{code}. The code string itself is
// immutable; a code in the body is ignored.
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	b, err := decodeCodeBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !b.hasActive {
		fail(w, r, &requestError{Field: "is_active", Err: errRequired})
		return
	}

	c, err := h.discounts.Update(r.Context(), mux.Vars(r)["code"], discount.UpdateRequest{
		Title:     b.Title,
		Type:      b.Type,
		Value:     b.Value,
		ExpiredAt: b.ExpiredAt,
		CanUses:   b.CanUses,
		IsActive:  b.IsActive,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCode(e, c, nil) })
}

// GetDiscount serves GET /api/discounts/{code}. Reading an expired code
// deactivates it.
func (h *Handler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	c, st, err := h.discounts.Get(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCode(e, c, &st) })
}

// DeactivateDiscount serves POST /api/discounts/{code}/deactivate.
func (h *Handler) DeactivateDiscount(w http.ResponseWriter, r *http.Request) {
	c, err := h.discounts.Deactivate(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCode(e, c, nil) })
}
