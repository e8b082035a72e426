package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// A concurrent first add of the same product loses the insert race; the
// retry then merges into the winner's line.
const maxMergeAttempts = 3

type CartService struct {
	db     port.DatabaseRepository
	logger *zap.Logger
	opts   Options
}

func NewCartService(db port.DatabaseRepository, logger *zap.Logger, opts Options) *CartService {
	return &CartService{db: db, logger: logger, opts: opts}
}

// AddOrMerge adds quantity units of a product to the user's cart, merging
// into the existing line. The merged quantity must fit the product's stock
// or nothing changes.
func (s *CartService) AddOrMerge(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if quantity < 1 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrInvalidArgument)
	}

	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		err = s.db.MergeCartLine(ctx, domain.CartLine{
			ID:        uuid.NewString(),
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
			AddedAt:   time.Now().UTC(),
		})
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		s.logger.Debug("cart merge conflict, retrying",
			zap.String("user_id", userID),
			zap.String("product_id", productID),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		return domain.Cart{}, domain.Transient("add to cart", err)
	}

	return s.cart(ctx, userID)
}

// SetQuantity sets a line to an absolute quantity; zero or less removes it.
// It returns the owner's cart afterwards.
func (s *CartService) SetQuantity(ctx context.Context, lineID string, quantity int) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	line, err := s.db.GetCartLine(ctx, lineID)
	if err != nil {
		return domain.Cart{}, domain.Transient("get cart line", err)
	}

	if quantity <= 0 {
		err = s.db.DeleteCartLine(ctx, lineID)
	} else {
		err = s.db.SetCartLineQuantity(ctx, lineID, quantity)
	}
	if err != nil {
		return domain.Cart{}, domain.Transient("set cart quantity", err)
	}

	return s.cart(ctx, line.UserID)
}

// Remove deletes a line. Removing an absent line reports ErrNotFound.
func (s *CartService) Remove(ctx context.Context, lineID string) error {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	if err := s.db.DeleteCartLine(ctx, lineID); err != nil {
		return domain.Transient("remove cart line", err)
	}
	return nil
}

func (s *CartService) Line(ctx context.Context, lineID string) (*domain.CartLine, error) {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	line, err := s.db.GetCartLine(ctx, lineID)
	if err != nil {
		return nil, domain.Transient("get cart line", err)
	}
	return line, nil
}

func (s *CartService) cart(ctx context.Context, userID string) (domain.Cart, error) {
	items, err := s.db.ListCartItems(ctx, userID)
	if err != nil {
		return domain.Cart{}, domain.Transient("get cart", err)
	}
	return domain.NewCart(userID, items), nil
}
