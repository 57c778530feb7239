package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateRequest holds the input for registering a new discount code.
type CreateRequest struct {
	Title     string
	Code      string
	Type      Type
	Value     decimal.Decimal
	ExpiredAt time.Time
	CanUses   int
}

// UpdateRequest holds the mutable fields of an existing code.
type UpdateRequest struct {
	Title     string
	Type      Type
	Value     decimal.Decimal
	ExpiredAt time.Time
	CanUses   int
	IsActive  bool
}

// Service manages the discount code lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates and persists a new, active code.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Code, error) {
	now := s.now()
	c := &Code{
		Title:     req.Title,
		Code:      req.Code,
		Type:      req.Type,
		Value:     req.Value,
		CreatedAt: now,
		ExpiredAt: req.ExpiredAt,
		IsActive:  true,
		CanUses:   req.CanUses,
	}
	if err := Validate(c, now); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, errors.Wrap(err, "create discount code")
	}

	zctx.From(ctx).Info("Discount code created",
		zap.Int64("discount_id", c.ID),
		zap.String("code", c.Code),
		zap.String("type", string(c.Type)),
	)
	return c, nil
}

// Update validates and persists changes to the code identified by code.
// UseCount is never touched.
func (s *Service) Update(ctx context.Context, code string, req UpdateRequest) (*Code, error) {
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.Title = req.Title
	c.Type = req.Type
	c.Value = req.Value
	c.ExpiredAt = req.ExpiredAt
	c.CanUses = req.CanUses
	c.IsActive = req.IsActive

	if err := Validate(c, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update discount code")
	}
	return c, nil
}

// Get returns the code together with its current status. When the code is
// observed expired for the first time, the deactivation is persisted.
func (s *Service) Get(ctx context.Context, code string) (*Code, Status, error) {
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, Status{}, err
	}
	st, err := s.refresh(ctx, c)
	if err != nil {
		return nil, Status{}, err
	}
	return c, st, nil
}

// ExpiresIn returns the time left before c expires, zero when it is no
// longer usable. See Get for the persistence side effect.
func (s *Service) ExpiresIn(ctx context.Context, c *Code) (time.Duration, error) {
	st, err := s.refresh(ctx, c)
	if err != nil {
		return 0, err
	}
	return st.Remaining, nil
}

// Deactivate marks the code inactive regardless of its expiry.
func (s *Service) Deactivate(ctx context.Context, code string) (*Code, error) {
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return c, nil
	}
	if err := s.repo.Deactivate(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "deactivate discount code")
	}
	c.IsActive = false
	return c, nil
}

func (s *Service) refresh(ctx context.Context, c *Code) (Status, error) {
	if !c.IsActive {
		return Status{}, nil
	}
	st := RefreshStatus(c, s.now())
	if st.Deactivate {
		if err := s.repo.Deactivate(ctx, c.ID); err != nil {
			return Status{}, errors.Wrap(err, "persist expiry")
		}
		c.IsActive = false
		zctx.From(ctx).Info("Discount code expired", zap.String("code", c.Code))
	}
	return st, nil
}
