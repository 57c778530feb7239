// Package handler exposes the cart and discount services over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xenking/shop-api/internal/domain/auth"
	"github.com/xenking/shop-api/internal/domain/cart"
	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/domain/product"
)

// CartService is the cart engine as seen by the HTTP layer.
type CartService interface {
	GetCart(ctx context.Context, userID int64) (*cart.View, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*cart.View, error)
	RemoveItem(ctx context.Context, userID, productID int64) (*cart.View, error)
	UpdateItemQuantity(ctx context.Context, userID int64, req cart.UpdateItemRequest) (*cart.View, error)
	ApplyDiscount(ctx context.Context, userID int64, req cart.ApplyDiscountRequest) (*cart.View, error)
	RemoveDiscount(ctx context.Context, userID int64) (*cart.View, error)
}

// DiscountService manages discount codes.
type DiscountService interface {
	Create(ctx context.Context, req discount.CreateRequest) (*discount.Code, error)
	Update(ctx context.Context, code string, req discount.UpdateRequest) (*discount.Code, error)
	Get(ctx context.Context, code string) (*discount.Code, discount.Status, error)
	Deactivate(ctx context.Context, code string) (*discount.Code, error)
}

// TokenVerifier authenticates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Handler serves the /api routes.
type Handler struct {
	products  product.Repository
	carts     CartService
	discounts DiscountService
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, carts CartService, discounts DiscountService) *Handler {
	return &Handler{
		products:  products,
		carts:     carts,
		discounts: discounts,
	}
}

// Register mounts the API under /api on r. Everything except the product
// catalog requires a bearer token; discount management requires the admin
// scope.
func (h *Handler) Register(r *mux.Router, tokens TokenVerifier) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)

	user := api.NewRoute().Subrouter()
	user.Use(Authenticate(tokens))
	user.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	user.HandleFunc("/cart/items", h.AddItem).Methods(http.MethodPost)
	user.HandleFunc("/cart/items", h.UpdateItem).Methods(http.MethodPatch)
	user.HandleFunc("/cart/items/{product_id}", h.RemoveItem).Methods(http.MethodDelete)
	user.HandleFunc("/cart/discount", h.ApplyDiscount).Methods(http.MethodPost)
	user.HandleFunc("/cart/discount", h.RemoveDiscount).Methods(http.MethodDelete)

	admin := api.NewRoute().Subrouter()
	admin.Use(Authenticate(tokens), RequireScope(auth.ScopeAdmin))
	admin.HandleFunc("/discounts", h.CreateDiscount).Methods(http.MethodPost)
	admin.HandleFunc("/discounts/{code}", h.GetDiscount).Methods(http.MethodGet)
	admin.HandleFunc("/discounts/{code}", h.UpdateDiscount).Methods(http.MethodPut)
	admin.HandleFunc("/discounts/{code}/deactivate", h.DeactivateDiscount).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})
}
