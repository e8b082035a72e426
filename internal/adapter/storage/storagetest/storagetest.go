// Package storagetest provides throwaway databases for tests outside the
// storage package.
package storagetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
)

// NewSQLite migrates a fresh SQLite database under t.TempDir and closes it
// when the test ends.
func NewSQLite(t *testing.T) (*storage.SQLAdapter, *sql.DB) {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(context.Background(), db, storage.DialectSQLite))
	return storage.NewSQLAdapter(db, storage.DialectSQLite), db
}

// SeedProduct inserts a product with the given price and stock.
func SeedProduct(t *testing.T, repo *storage.SQLAdapter, name, price string, quantity int) domain.Product {
	t.Helper()

	p := domain.Product{
		ID:        uuid.NewString(),
		Name:      name,
		Barcode:   uuid.NewString(),
		Color:     "black",
		Size:      "M",
		Category:  domain.CategoryTShirt,
		Price:     decimal.RequireFromString(price),
		Quantity:  quantity,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}
