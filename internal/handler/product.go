package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/gorilla/mux"

	"github.com/xenking/shop-api/internal/domain/product"
)

// ListProducts serves GET /api/products?search=&ordering=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ordering, err := product.ParseOrdering(query.Get("ordering"))
	if err != nil {
		fail(w, r, &requestError{Field: "ordering", Err: err})
		return
	}
	products, err := h.products.ListActive(r.Context(), product.ListQuery{
		Search:   strings.TrimSpace(query.Get("search")),
		Ordering: ordering,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

// GetProduct serves GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(mux.Vars(r), "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.GetActive(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}
