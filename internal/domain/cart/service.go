package cart

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/shop-api/internal/domain/discount"
)

// Outcomes recorded on the bind counter.
const (
	outcomeBound     = "bound"
	outcomeRebound   = "rebound"
	outcomeReplaced  = "replaced"
	outcomeExhausted = "exhausted"
	outcomeExpired   = "expired"
	outcomeNotFound  = "not_found"
)

// MaxQuantity is the largest quantity a single cart line can hold.
const MaxQuantity = math.MaxInt32

// UpdateItemRequest holds the input for setting a line's quantity. Both
// fields are required; a nil pointer means the field was not supplied.
type UpdateItemRequest struct {
	ProductID *int64
	Quantity  *int
}

// ApplyDiscountRequest holds the input for binding a code to the caller's
// cart. CartID is optional; when set it must be the caller's cart.
type ApplyDiscountRequest struct {
	CartID string
	Code   string
}

// Service implements cart mutations, discount binding and pricing.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
	binds metric.Int64Counter
}

// NewService creates a Service over the given Store.
func NewService(store Store, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter("github.com/xenking/shop-api/internal/domain/cart")
	binds, err := meter.Int64Counter("shop.cart.discount.binds",
		metric.WithDescription("Discount bind attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create bind counter")
	}
	return &Service{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		binds: binds,
	}, nil
}

// GetCart returns the caller's cart, creating an empty one on first access.
func (s *Service) GetCart(ctx context.Context, userID int64) (*View, error) {
	return s.mutate(ctx, userID, func(context.Context, Tx, *Cart) (bool, error) {
		return false, nil
	})
}

// AddItem merges quantity of the product into the cart.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, quantity int) (*View, error) {
	if productID <= 0 {
		return nil, &InputError{Field: "product_id", Reason: "required"}
	}
	if quantity <= 0 {
		return nil, &InputError{Field: "quantity", Reason: "must be a positive integer"}
	}
	if quantity > MaxQuantity {
		return nil, errQuantityTooLarge
	}
	return s.mutate(ctx, userID, func(ctx context.Context, tx Tx, c *Cart) (bool, error) {
		if _, err := tx.ActiveProduct(ctx, productID); err != nil {
			return false, err
		}
		items, err := tx.Items(ctx, c.ID)
		if err != nil {
			return false, errors.Wrap(err, "list items")
		}
		for _, it := range items {
			if it.ProductID == productID && quantity > MaxQuantity-it.Quantity {
				return false, errQuantityTooLarge
			}
		}
		if err := tx.AddQuantity(ctx, c.ID, productID, quantity); err != nil {
			return false, errors.Wrap(err, "add quantity")
		}
		return true, nil
	})
}

// RemoveItem deletes the product's line. Removing an absent product is not
// an error.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) (*View, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, tx Tx, c *Cart) (bool, error) {
		removed, err := tx.DeleteItem(ctx, c.ID, productID)
		if err != nil {
			return false, errors.Wrap(err, "delete item")
		}
		return removed, nil
	})
}

// UpdateItemQuantity sets the absolute quantity of an existing line. A
// quantity of zero or less removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID int64, req UpdateItemRequest) (*View, error) {
	if req.ProductID == nil {
		return nil, &InputError{Field: "product_id", Reason: "required"}
	}
	if req.Quantity == nil {
		return nil, &InputError{Field: "quantity", Reason: "required"}
	}
	productID, quantity := *req.ProductID, *req.Quantity
	if quantity > MaxQuantity {
		return nil, errQuantityTooLarge
	}

	return s.mutate(ctx, userID, func(ctx context.Context, tx Tx, c *Cart) (bool, error) {
		var (
			found bool
			err   error
		)
		if quantity <= 0 {
			found, err = tx.DeleteItem(ctx, c.ID, productID)
		} else {
			found, err = tx.SetQuantity(ctx, c.ID, productID, quantity)
		}
		if err != nil {
			return false, errors.Wrap(err, "update item")
		}
		if !found {
			return false, ErrItemNotFound
		}
		return true, nil
	})
}

// ApplyDiscount binds the code to the caller's cart.
//
// A cart holds at most one code. Binding the code already on the cart is a
// no-op. Binding a different code consumes one use of the new code and gives
// one use back to the replaced code.
func (s *Service) ApplyDiscount(ctx context.Context, userID int64, req ApplyDiscountRequest) (*View, error) {
	if req.Code == "" {
		return nil, &InputError{Field: "code", Reason: "required"}
	}

	var (
		refused error
		outcome string
	)
	v, err := s.mutate(ctx, userID, func(ctx context.Context, tx Tx, c *Cart) (bool, error) {
		refused, outcome = nil, ""

		if req.CartID != "" && req.CartID != c.ID {
			return false, ErrNotFound
		}

		code, err := tx.LockByCode(ctx, req.Code)
		if err != nil {
			if errors.Is(err, discount.ErrNotFound) {
				outcome = outcomeNotFound
			}
			return false, err
		}
		if code.Exhausted() {
			outcome = outcomeExhausted
			return false, discount.ErrExhausted
		}

		st := discount.RefreshStatus(code, s.now())
		if st.Deactivate {
			if err := tx.Deactivate(ctx, code.ID); err != nil {
				return false, errors.Wrap(err, "persist expiry")
			}
			code.IsActive = false
		}
		if !st.Usable {
			// Commit the deactivation, refuse the bind afterwards.
			refused, outcome = discount.ErrExpired, outcomeExpired
			return false, nil
		}

		b, err := tx.Binding(ctx, c.ID)
		if err != nil {
			return false, errors.Wrap(err, "get binding")
		}
		switch {
		case b == nil:
			if err := s.consume(ctx, tx, code.ID); err != nil {
				if errors.Is(err, discount.ErrExhausted) {
					outcome = outcomeExhausted
				}
				return false, err
			}
			b = &Binding{CartID: c.ID, CreatedAt: s.now()}
			outcome = outcomeBound
		case b.CodeID == code.ID:
			outcome = outcomeRebound
			return false, nil
		default:
			if err := s.consume(ctx, tx, code.ID); err != nil {
				if errors.Is(err, discount.ErrExhausted) {
					outcome = outcomeExhausted
				}
				return false, err
			}
			if err := tx.RefundUse(ctx, b.CodeID); err != nil {
				return false, errors.Wrap(err, "refund replaced code")
			}
			outcome = outcomeReplaced
		}

		b.CodeID = code.ID
		if err := tx.SaveBinding(ctx, *b); err != nil {
			return false, errors.Wrap(err, "save binding")
		}
		return true, nil
	})
	if outcome != "" {
		s.binds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if err != nil {
		return nil, err
	}
	if refused != nil {
		return nil, refused
	}

	zctx.From(ctx).Info("Discount applied",
		zap.String("cart_id", v.Cart.ID),
		zap.String("code", req.Code),
		zap.String("outcome", outcome),
	)
	return v, nil
}

// RemoveDiscount unbinds the cart's code and gives its use back. It is a
// no-op for a cart without a discount.
func (s *Service) RemoveDiscount(ctx context.Context, userID int64) (*View, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, tx Tx, c *Cart) (bool, error) {
		b, err := tx.Binding(ctx, c.ID)
		if err != nil {
			return false, errors.Wrap(err, "get binding")
		}
		if b == nil {
			return false, nil
		}
		if err := tx.DeleteBinding(ctx, c.ID); err != nil {
			return false, errors.Wrap(err, "delete binding")
		}
		if err := tx.RefundUse(ctx, b.CodeID); err != nil {
			return false, errors.Wrap(err, "refund code")
		}
		return true, nil
	})
}

func (s *Service) consume(ctx context.Context, tx Tx, codeID int64) error {
	ok, err := tx.TryConsumeUse(ctx, codeID)
	if err != nil {
		return errors.Wrap(err, "consume use")
	}
	if !ok {
		return discount.ErrExhausted
	}
	return nil
}

// mutate locks the user's cart, runs fn and returns the priced cart. fn
// reports whether it changed the cart so updated_at can be bumped.
func (s *Service) mutate(
	ctx context.Context,
	userID int64,
	fn func(ctx context.Context, tx Tx, c *Cart) (bool, error),
) (*View, error) {
	var view *View
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.now()
		c, err := tx.LockCart(ctx, Cart{
			ID:        s.newID(),
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "lock cart")
		}

		changed, err := fn(ctx, tx, c)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Touch(ctx, c.ID, now); err != nil {
				return errors.Wrap(err, "touch cart")
			}
			c.UpdatedAt = now
		}

		view, err = load(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func load(ctx context.Context, tx Tx, c *Cart) (*View, error) {
	items, err := tx.Items(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}

	v := &View{Cart: *c, Items: items}
	b, err := tx.Binding(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get binding")
	}
	if b != nil {
		if v.Discount, err = tx.Code(ctx, b.CodeID); err != nil {
			return nil, errors.Wrap(err, "get bound code")
		}
	}

	if v.Totals, err = Price(items, v.Discount); err != nil {
		return nil, err
	}
	return v, nil
}
