package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/shop-api/internal/domain/cart"
	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/domain/product"
)

const (
	insertCartSQL = `INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`

	lockCartSQL = `SELECT id, user_id, created_at, updated_at
		FROM carts WHERE user_id = $1 FOR UPDATE`

	touchCartSQL = `UPDATE carts SET updated_at = $2 WHERE id = $1`

	listItemsSQL = `SELECT ci.product_id, p.title, p.price, ci.quantity
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 ORDER BY ci.id`

	addItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	setItemSQL    = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`
	deleteItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	getBindingSQL = `SELECT cart_id, code_id, created_at
		FROM cart_discount_uses WHERE cart_id = $1`

	saveBindingSQL = `INSERT INTO cart_discount_uses (cart_id, code_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id) DO UPDATE SET code_id = EXCLUDED.code_id`

	deleteBindingSQL = `DELETE FROM cart_discount_uses WHERE cart_id = $1`
)

// SQLSTATEs after which the whole transaction can be replayed.
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// DefaultTxMaxAttempts is the attempt budget used by the API server.
const DefaultTxMaxAttempts = 10

// Pause between replays of a conflicting transaction.
const (
	retryInitialInterval = 5 * time.Millisecond
	retryMaxInterval     = 250 * time.Millisecond
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store with SERIALIZABLE transactions. Transactions
// that lose a serialization conflict are replayed up to maxAttempts times with
// jittered exponential backoff between attempts.
type CartStore struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool, maxAttempts int) *CartStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CartStore{pool: pool, maxAttempts: maxAttempts}
}

func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// InTx runs fn in a SERIALIZABLE transaction, committing when fn returns nil.
// When every attempt loses a conflict the error wraps cart.ErrConflict.
func (s *CartStore) InTx(ctx context.Context, fn func(ctx context.Context, tx cart.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	b := newRetryBackOff()
	for attempt := 1; ; attempt++ {
		err := pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
			return fn(ctx, &cartTx{codeLocker{tx: tx}})
		})
		if err == nil || !retryable(err) {
			return err
		}
		if attempt >= s.maxAttempts {
			return fmt.Errorf("%w: gave up after %d attempts: %w", cart.ErrConflict, attempt, err)
		}

		delay := b.NextBackOff()
		zctx.From(ctx).Debug("Retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}

type cartTx struct {
	codeLocker
}

var _ cart.Tx = (*cartTx)(nil)

func (t *cartTx) LockCart(ctx context.Context, candidate cart.Cart) (*cart.Cart, error) {
	_, err := t.tx.Exec(ctx, insertCartSQL,
		candidate.ID, candidate.UserID, candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating cart for user %d: %w", candidate.UserID, err)
	}

	var c cart.Cart
	err = t.tx.QueryRow(ctx, lockCartSQL, candidate.UserID).Scan(
		&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("locking cart for user %d: %w", candidate.UserID, err)
	}
	return &c, nil
}

func (t *cartTx) Items(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := t.tx.Query(ctx, listItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %s: %w", cartID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.Title, &it.Price, &it.Quantity)
		return it, err
	})
}

func (t *cartTx) ActiveProduct(ctx context.Context, id int64) (*product.Product, error) {
	return getActiveProduct(ctx, t.tx, id)
}

func (t *cartTx) AddQuantity(ctx context.Context, cartID string, productID int64, qty int) error {
	if _, err := t.tx.Exec(ctx, addItemSQL, cartID, productID, qty); err != nil {
		return fmt.Errorf("adding product %d to cart %s: %w", productID, cartID, err)
	}
	return nil
}

func (t *cartTx) SetQuantity(ctx context.Context, cartID string, productID int64, qty int) (bool, error) {
	tag, err := t.tx.Exec(ctx, setItemSQL, cartID, productID, qty)
	if err != nil {
		return false, fmt.Errorf("setting quantity of product %d in cart %s: %w", productID, cartID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *cartTx) DeleteItem(ctx context.Context, cartID string, productID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, deleteItemSQL, cartID, productID)
	if err != nil {
		return false, fmt.Errorf("deleting product %d from cart %s: %w", productID, cartID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *cartTx) Touch(ctx context.Context, cartID string, at time.Time) error {
	if _, err := t.tx.Exec(ctx, touchCartSQL, cartID, at); err != nil {
		return fmt.Errorf("touching cart %s: %w", cartID, err)
	}
	return nil
}

func (t *cartTx) Binding(ctx context.Context, cartID string) (*cart.Binding, error) {
	var b cart.Binding
	err := t.tx.QueryRow(ctx, getBindingSQL, cartID).Scan(&b.CartID, &b.CodeID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting discount of cart %s: %w", cartID, err)
	}
	return &b, nil
}

func (t *cartTx) SaveBinding(ctx context.Context, b cart.Binding) error {
	if _, err := t.tx.Exec(ctx, saveBindingSQL, b.CartID, b.CodeID, b.CreatedAt); err != nil {
		return fmt.Errorf("binding code %d to cart %s: %w", b.CodeID, b.CartID, err)
	}
	return nil
}

func (t *cartTx) DeleteBinding(ctx context.Context, cartID string) error {
	if _, err := t.tx.Exec(ctx, deleteBindingSQL, cartID); err != nil {
		return fmt.Errorf("unbinding discount of cart %s: %w", cartID, err)
	}
	return nil
}

func (t *cartTx) Code(ctx context.Context, id int64) (*discount.Code, error) {
	return findCode(ctx, t.tx, getCodeByIDSQL, id)
}
