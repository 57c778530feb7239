package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-api/internal/domain/discount"
)

const (
	codeColumns = `id, title, code, discount_type, discount_value, created_at,
		expired_at, is_active, can_uses, use_count`

	insertCodeSQL = `INSERT INTO discount_codes
		(title, code, discount_type, discount_value, created_at, expired_at, is_active, can_uses)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	updateCodeSQL = `UPDATE discount_codes
		SET title = $2, discount_type = $3, discount_value = $4, expired_at = $5,
			is_active = $6, can_uses = $7
		WHERE id = $1`

	getCodeByCodeSQL  = `SELECT ` + codeColumns + ` FROM discount_codes WHERE code = $1`
	getCodeByIDSQL    = `SELECT ` + codeColumns + ` FROM discount_codes WHERE id = $1`
	lockCodeByCodeSQL = getCodeByCodeSQL + ` FOR UPDATE`
	deactivateCodeSQL = `UPDATE discount_codes SET is_active = FALSE WHERE id = $1`
	refundCodeUseSQL  = `UPDATE discount_codes SET can_uses = can_uses + 1 WHERE id = $1`

	tryConsumeCodeUseSQL = `UPDATE discount_codes
		SET can_uses = can_uses - 1, use_count = use_count + 1
		WHERE id = $1 AND can_uses >= 1`
)

const uniqueViolation = "23505"

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// Create inserts c and sets its ID. A taken code string yields
// discount.ErrAlreadyExists.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.Code) error {
	err := r.pool.QueryRow(ctx, insertCodeSQL,
		c.Title, c.Code, string(c.Type), c.Value, c.CreatedAt, c.ExpiredAt, c.IsActive, c.CanUses,
	).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return discount.ErrAlreadyExists
		}
		return fmt.Errorf("creating discount code %q: %w", c.Code, err)
	}
	return nil
}

// Update persists the mutable fields of c. use_count is never written.
func (r *DiscountRepository) Update(ctx context.Context, c *discount.Code) error {
	tag, err := r.pool.Exec(ctx, updateCodeSQL,
		c.ID, c.Title, string(c.Type), c.Value, c.ExpiredAt, c.IsActive, c.CanUses,
	)
	if err != nil {
		return fmt.Errorf("updating discount code %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// FindByCode looks up a code by its exact string.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	return findCode(ctx, r.pool, getCodeByCodeSQL, code)
}

// Deactivate marks the code inactive.
func (r *DiscountRepository) Deactivate(ctx context.Context, id int64) error {
	return deactivateCode(ctx, r.pool, id)
}

// codeLocker implements discount.Locker on an open transaction.
type codeLocker struct {
	tx pgx.Tx
}

var _ discount.Locker = codeLocker{}

func (l codeLocker) LockByCode(ctx context.Context, code string) (*discount.Code, error) {
	return findCode(ctx, l.tx, lockCodeByCodeSQL, code)
}

func (l codeLocker) TryConsumeUse(ctx context.Context, id int64) (bool, error) {
	tag, err := l.tx.Exec(ctx, tryConsumeCodeUseSQL, id)
	if err != nil {
		return false, fmt.Errorf("consuming use of discount code %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l codeLocker) RefundUse(ctx context.Context, id int64) error {
	if _, err := l.tx.Exec(ctx, refundCodeUseSQL, id); err != nil {
		return fmt.Errorf("refunding use of discount code %d: %w", id, err)
	}
	return nil
}

func (l codeLocker) Deactivate(ctx context.Context, id int64) error {
	return deactivateCode(ctx, l.tx, id)
}

func findCode(ctx context.Context, q querier, sql string, arg any) (*discount.Code, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding discount code %v: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount code %v: %w", arg, err)
	}
	return &c, nil
}

func deactivateCode(ctx context.Context, q querier, id int64) error {
	if _, err := q.Exec(ctx, deactivateCodeSQL, id); err != nil {
		return fmt.Errorf("deactivating discount code %d: %w", id, err)
	}
	return nil
}

func scanCode(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c   discount.Code
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Title, &c.Code, &typ, &c.Value, &c.CreatedAt,
		&c.ExpiredAt, &c.IsActive, &c.CanUses, &c.UseCount,
	)
	c.Type = discount.Type(typ)
	return c, err
}
