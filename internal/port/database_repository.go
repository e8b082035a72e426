package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type DatabaseRepository interface {
	// CreateProduct inserts a product, failing with ErrDuplicateBarcode on a taken barcode
	CreateProduct(ctx context.Context, product domain.Product) error

	// GetProduct retrieves a product by ID, ErrNotFound if absent
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// UpdateProduct rewrites a product's descriptive fields and price, leaving
	// stock untouched. ErrNotFound if absent, ErrDuplicateBarcode on a taken barcode
	UpdateProduct(ctx context.Context, product domain.Product) error

	// DeleteProduct removes a product, ErrProductInUse while cart lines reference it
	DeleteProduct(ctx context.Context, productID string) error

	// ListProducts returns products matching the filter ordered by name
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)

	// Restock adds amount units and returns the new quantity. A result above
	// domain.MaxStock is rejected with ErrInvalidArgument
	Restock(ctx context.Context, productID string, amount int) (int, error)

	// MergeCartLine adds quantity to the user's line for the product, creating it if missing.
	// The merged quantity must not exceed stock; on rejection the line is left unchanged.
	MergeCartLine(ctx context.Context, line domain.CartLine) error

	// SetCartLineQuantity sets an absolute quantity bounded by the product's stock
	SetCartLineQuantity(ctx context.Context, lineID string, quantity int) error

	// DeleteCartLine removes a line, ErrNotFound if absent
	DeleteCartLine(ctx context.Context, lineID string) error

	// GetCartLine retrieves a single line, ErrNotFound if absent
	GetCartLine(ctx context.Context, lineID string) (*domain.CartLine, error)

	// ListCartItems returns the user's lines joined with current product data
	ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error)

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrdersByUser returns the user's orders newest first, without lines
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)

	// ListLedgerEntries returns up to limit entries newest first and the balance over all entries
	ListLedgerEntries(ctx context.Context, limit int) (*domain.Ledger, error)

	ListPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)

	MarkEventSent(ctx context.Context, eventID string, sentAt time.Time) error

	// WithinTx runs fn in one transaction, committing if fn returns nil and
	// rolling back everything otherwise
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes a checkout commits as a single unit.
type Tx interface {
	ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error)

	InsertOrder(ctx context.Context, order domain.Order) error

	// DecrementStock subtracts amount only if amount <= current stock,
	// failing with *domain.InsufficientStockError otherwise
	DecrementStock(ctx context.Context, productID string, amount int) error

	InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error

	// DeleteCartLines removes exactly the given lines at the given quantities,
	// failing with ErrConflict if any of them changed or vanished
	DeleteCartLines(ctx context.Context, lines []domain.CartLine) error

	InsertOutboxEvent(ctx context.Context, event domain.OutboxEvent) error
}
