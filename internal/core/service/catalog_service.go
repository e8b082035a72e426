package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const defaultLedgerLimit = 50

// CatalogService owns products and the stock ledger outside of checkout.
type CatalogService struct {
	db     port.DatabaseRepository
	logger *zap.Logger
	opts   Options
}

func NewCatalogService(db port.DatabaseRepository, logger *zap.Logger, opts Options) *CatalogService {
	return &CatalogService{db: db, logger: logger, opts: opts}
}

type NewProduct struct {
	Name     string
	Barcode  string
	Color    string
	Size     string
	Category string
	Price    decimal.Decimal
	Quantity int
}

func (s *CatalogService) CreateProduct(ctx context.Context, in NewProduct) (*domain.Product, error) {
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}

	product := domain.Product{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Barcode:   strings.TrimSpace(in.Barcode),
		Color:     in.Color,
		Size:      in.Size,
		Category:  category,
		Price:     in.Price,
		Quantity:  in.Quantity,
		CreatedAt: time.Now().UTC(),
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	if err := s.db.CreateProduct(ctx, product); err != nil {
		return nil, domain.Transient("create product", err)
	}

	s.logger.Info("product created",
		zap.String("product_id", product.ID),
		zap.String("barcode", product.Barcode),
		zap.Int("quantity", product.Quantity))

	return &product, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	product, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, domain.Transient("get product", err)
	}
	return product, nil
}

// ProductUpdate replaces a product's descriptive fields and price. Stock
// only changes through restock and checkout.
type ProductUpdate struct {
	Name     string
	Barcode  string
	Color    string
	Size     string
	Category string
	Price    decimal.Decimal
}

func (s *CatalogService) UpdateProduct(ctx context.Context, productID string, in ProductUpdate) (*domain.Product, error) {
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	product, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, domain.Transient("get product", err)
	}

	product.Name = strings.TrimSpace(in.Name)
	product.Barcode = strings.TrimSpace(in.Barcode)
	product.Color = in.Color
	product.Size = in.Size
	product.Category = category
	product.Price = in.Price
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if err := s.db.UpdateProduct(ctx, *product); err != nil {
		return nil, domain.Transient("update product", err)
	}

	updated, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, domain.Transient("get product", err)
	}

	s.logger.Info("product updated",
		zap.String("product_id", productID),
		zap.String("barcode", updated.Barcode),
		zap.String("price", updated.Price.String()))

	return updated, nil
}

// DeleteProduct removes a product that no cart holds. Past orders keep
// their own copy of name and price.
func (s *CatalogService) DeleteProduct(ctx context.Context, productID string) error {
	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	if err := s.db.DeleteProduct(ctx, productID); err != nil {
		return domain.Transient("delete product", err)
	}

	s.logger.Info("product deleted", zap.String("product_id", productID))
	return nil
}

// ListProducts is the stock report; empty category or size match all.
func (s *CatalogService) ListProducts(ctx context.Context, category, size string) ([]domain.Product, error) {
	var filter domain.ProductFilter
	if category != "" {
		c, err := domain.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		filter.Category = c
	}
	filter.Size = size

	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	products, err := s.db.ListProducts(ctx, filter)
	if err != nil {
		return nil, domain.Transient("list products", err)
	}
	return products, nil
}

func (s *CatalogService) Availability(ctx context.Context, productID string) (int, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.Quantity, nil
}

func (s *CatalogService) Restock(ctx context.Context, productID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: restock amount must be positive", domain.ErrInvalidArgument)
	}
	if amount > domain.MaxStock {
		return 0, fmt.Errorf("%w: restock amount must not exceed %d", domain.ErrInvalidArgument, domain.MaxStock)
	}

	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	quantity, err := s.db.Restock(ctx, productID, amount)
	if err != nil {
		return 0, domain.Transient("restock", err)
	}

	s.logger.Info("product restocked",
		zap.String("product_id", productID),
		zap.Int("amount", amount),
		zap.Int("quantity", quantity))

	return quantity, nil
}

// Ledger returns the newest entries and the balance over all of them.
func (s *CatalogService) Ledger(ctx context.Context, limit int) (*domain.Ledger, error) {
	if limit <= 0 {
		limit = defaultLedgerLimit
	}

	ctx, cancel := withTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	ledger, err := s.db.ListLedgerEntries(ctx, limit)
	if err != nil {
		return nil, domain.Transient("list ledger", err)
	}
	return ledger, nil
}
