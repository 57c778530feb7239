package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/gorilla/mux"

	"github.com/xenking/shop-api/internal/domain/cart"
)

func writeCart(w http.ResponseWriter, r *http.Request, v *cart.View, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, v) })
}

// itemRequest is the body of the item endpoints. Absent and null fields stay
// nil so the service can tell "omitted" from zero.
type itemRequest struct {
	ProductID *int64
	Quantity  *int
}

func decodeItemRequest(w http.ResponseWriter, r *http.Request) (itemRequest, error) {
	var req itemRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			req.ProductID, err = decodeOptInt64(d)
		case "quantity":
			req.Quantity, err = decodeOptInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// GetCart serves GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.GetCart(r.Context(), principal(r).UserID)
	writeCart(w, r, v, err)
}

// AddItem serves POST /api/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeItemRequest(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.ProductID == nil {
		fail(w, r, &cart.InputError{Field: "product_id", Reason: "required"})
		return
	}
	if req.Quantity == nil {
		fail(w, r, &cart.InputError{Field: "quantity", Reason: "required"})
		return
	}
	v, err := h.carts.AddItem(r.Context(), principal(r).UserID, *req.ProductID, *req.Quantity)
	writeCart(w, r, v, err)
}

// UpdateItem serves PATCH /api/cart/items.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeItemRequest(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := h.carts.UpdateItemQuantity(r.Context(), principal(r).UserID, cart.UpdateItemRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	writeCart(w, r, v, err)
}

// RemoveItem serves DELETE /api/cart/items/{product_id}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathInt64(mux.Vars(r), "product_id")
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := h.carts.RemoveItem(r.Context(), principal(r).UserID, productID)
	writeCart(w, r, v, err)
}

// ApplyDiscount serves POST /api/cart/discount.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req cart.ApplyDiscountRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cart_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.CartID, err = d.Str()
		case "code":
			req.Code, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := h.carts.ApplyDiscount(r.Context(), principal(r).UserID, req)
	writeCart(w, r, v, err)
}

// RemoveDiscount serves DELETE /api/cart/discount.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.RemoveDiscount(r.Context(), principal(r).UserID)
	writeCart(w, r, v, err)
}
