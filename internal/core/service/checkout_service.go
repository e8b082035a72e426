package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	checkoutLockPrefix        = "lock:checkout:"
	checkoutIdempotencyPrefix = "idempotency:checkout:"
	lockReleaseTimeout        = time.Second
)

// CheckoutService converts a user's cart into an order. Stock decrements,
// the order, its ledger entry, the cart deletion and the order.placed event
// commit together or not at all.
type CheckoutService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	logger *zap.Logger
	opts   Options
}

func NewCheckoutService(db port.DatabaseRepository, cache port.CacheRepository, logger *zap.Logger, opts Options) *CheckoutService {
	return &CheckoutService{
		db:     db,
		cache:  cache,
		logger: logger,
		opts:   opts,
	}
}

// Checkout places an order for everything in the user's cart. A non-empty
// requestID makes the call idempotent: a repeat returns the order the first
// call produced.
func (s *CheckoutService) Checkout(ctx context.Context, userID, requestID string) (*domain.CheckoutResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}

	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	var idempotencyKey string
	if requestID != "" {
		idempotencyKey = fmt.Sprintf("%s%s:%s", checkoutIdempotencyPrefix, userID, requestID)

		order, err := s.replay(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return &domain.CheckoutResult{Order: *order, Replayed: true}, nil
		}
	}

	lockKey := checkoutLockPrefix + userID
	token, ok, err := s.cache.AcquireLock(ctx, lockKey, s.opts.CheckoutLockTTL)
	if err != nil {
		return nil, domain.Transient("acquire checkout lock", err)
	}
	if !ok {
		return nil, domain.Transient("checkout", domain.ErrCheckoutInProgress)
	}
	defer s.releaseLock(ctx, lockKey, token)

	order, err := s.commit(ctx, userID)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		if err := s.cache.SetIdempotency(ctx, idempotencyKey, order.ID, s.opts.IdempotencyTTL); err != nil {
			s.logger.Warn("failed to record checkout idempotency key",
				zap.String("user_id", userID),
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	return &domain.CheckoutResult{Order: *order}, nil
}

func (s *CheckoutService) replay(ctx context.Context, key string) (*domain.Order, error) {
	orderID, err := s.cache.GetIdempotency(ctx, key)
	if err != nil {
		return nil, domain.Transient("idempotency lookup", err)
	}
	if orderID == "" {
		return nil, nil
	}

	order, err := s.db.GetOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("idempotency lookup", err)
	}
	return order, nil
}

func (s *CheckoutService) releaseLock(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
	defer cancel()

	if err := s.cache.ReleaseLock(ctx, key, token); err != nil {
		s.logger.Warn("failed to release checkout lock", zap.String("key", key), zap.Error(err))
	}
}

func (s *CheckoutService) commit(ctx context.Context, userID string) (*domain.Order, error) {
	attempt := &checkoutAttempt{userID: userID, state: domain.CheckoutStarted, logger: s.logger}
	attempt.log()

	var order domain.Order
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		items, err := tx.ListCartItems(ctx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrEmptyCart
		}

		for _, item := range items {
			if item.Quantity > item.Product.Quantity {
				return domain.NewInsufficientStock(item.ProductID, item.Product.Quantity)
			}
		}
		attempt.transition(domain.CheckoutValidated)

		order = newOrder(userID, items, time.Now().UTC())
		attempt.orderID = order.ID

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		// the pre-check above may be stale; this conditional decrement is the one that counts
		for _, item := range items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			Amount:      order.TotalAmount,
			Description: domain.OrderLedgerDescription(order.ID, userID),
			CreatedAt:   order.CreatedAt,
		}); err != nil {
			return err
		}

		lines := make([]domain.CartLine, 0, len(items))
		for _, item := range items {
			lines = append(lines, item.CartLine)
		}
		if err := tx.DeleteCartLines(ctx, lines); err != nil {
			return err
		}

		event, err := domain.NewOrderPlacedEvent(uuid.NewString(), order)
		if err != nil {
			return fmt.Errorf("build order event: %w", err)
		}
		return tx.InsertOutboxEvent(ctx, event)
	})
	if err != nil {
		attempt.abort(err)
		return nil, domain.Transient("checkout", err)
	}

	attempt.transition(domain.CheckoutCommitted)
	return &order, nil
}

func newOrder(userID string, items []domain.CartItem, now time.Time) domain.Order {
	order := domain.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		TotalAmount: decimal.Zero,
		Lines:       make([]domain.OrderLine, 0, len(items)),
		CreatedAt:   now,
	}

	for _, item := range items {
		line := domain.OrderLine{
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			UnitPrice:   item.Product.Price,
			Quantity:    item.Quantity,
		}
		order.Lines = append(order.Lines, line)
		order.TotalAmount = order.TotalAmount.Add(line.Subtotal())
	}

	return order
}

type checkoutAttempt struct {
	userID  string
	orderID string
	state   domain.CheckoutState
	logger  *zap.Logger
}

func (a *checkoutAttempt) transition(state domain.CheckoutState) {
	a.state = state
	a.log()
}

func (a *checkoutAttempt) log() {
	fields := []zap.Field{
		zap.String("user_id", a.userID),
		zap.String("state", string(a.state)),
	}
	if a.orderID != "" {
		fields = append(fields, zap.String("order_id", a.orderID))
	}

	if a.state == domain.CheckoutCommitted {
		a.logger.Info("checkout", fields...)
		return
	}
	a.logger.Debug("checkout", fields...)
}

func (a *checkoutAttempt) abort(err error) {
	from := a.state
	a.state = domain.CheckoutAborted

	fields := []zap.Field{
		zap.String("user_id", a.userID),
		zap.String("state", string(a.state)),
		zap.String("from", string(from)),
		zap.Error(err),
	}
	if a.orderID != "" {
		fields = append(fields, zap.String("order_id", a.orderID))
	}

	if domain.IsBusiness(err) {
		a.logger.Info("checkout", fields...)
		return
	}
	a.logger.Error("checkout", fields...)
}
