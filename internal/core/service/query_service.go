package service

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// QueryService serves read paths. Product snapshots reflect read time only.
type QueryService struct {
	db   port.DatabaseRepository
	opts Options
}

func NewQueryService(db port.DatabaseRepository, opts Options) *QueryService {
	return &QueryService{db: db, opts: opts}
}

func (s *QueryService) UserCart(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	items, err := s.db.ListCartItems(ctx, userID)
	if err != nil {
		return domain.Cart{}, domain.Transient("get cart", err)
	}
	return domain.NewCart(userID, items), nil
}

func (s *QueryService) UserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	orders, err := s.db.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, domain.Transient("list orders", err)
	}
	return orders, nil
}

func (s *QueryService) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, domain.Transient("get order", err)
	}
	return order, nil
}
