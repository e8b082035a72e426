package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func newSQLiteAdapter(t *testing.T) (*SQLAdapter, *sql.DB) {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "storefront.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db, DialectSQLite))
	return NewSQLAdapter(db, DialectSQLite), db
}

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}

	db, err := OpenMySQL(dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	return db
}

func newProduct(name, price string, quantity int) domain.Product {
	return domain.Product{
		ID:        uuid.NewString(),
		Name:      name,
		Barcode:   uuid.NewString(),
		Color:     "navy",
		Size:      "L",
		Category:  domain.CategorySweater,
		Price:     decimal.RequireFromString(price),
		Quantity:  quantity,
		CreatedAt: time.Now().UTC(),
	}
}

func seedProduct(t *testing.T, repo *SQLAdapter, name, price string, quantity int) domain.Product {
	t.Helper()
	p := newProduct(name, price, quantity)
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func cartLine(userID, productID string, quantity int) domain.CartLine {
	return domain.CartLine{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   time.Now().UTC(),
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	_, db := newSQLiteAdapter(t)
	require.NoError(t, Migrate(context.Background(), db, DialectSQLite))
}

func TestMigrate_UnknownDialect(t *testing.T) {
	_, db := newSQLiteAdapter(t)
	err := Migrate(context.Background(), db, Dialect("postgres"))
	require.Error(t, err)
}

func TestCreateProduct_RoundTrip(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	want := seedProduct(t, repo, "Wool Sweater", "49.90", 7)

	got, err := repo.GetProduct(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Barcode, got.Barcode)
	assert.Equal(t, domain.CategorySweater, got.Category)
	assert.True(t, want.Price.Equal(got.Price), "price %s", got.Price)
	assert.Equal(t, 7, got.Quantity)
	assert.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestCreateProduct_DuplicateBarcode(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	first := seedProduct(t, repo, "Tee", "10", 1)

	dup := newProduct("Other Tee", "12", 3)
	dup.Barcode = first.Barcode

	err := repo.CreateProduct(ctx, dup)
	require.ErrorIs(t, err, domain.ErrDuplicateBarcode)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)

	_, err := repo.GetProduct(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListProducts_Filter(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	sweater := seedProduct(t, repo, "B Sweater", "30", 2)
	pants := newProduct("A Pants", "40", 5)
	pants.Category = domain.CategoryPants
	pants.Size = "S"
	require.NoError(t, repo.CreateProduct(ctx, pants))

	all, err := repo.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, pants.ID, all[0].ID, "ordered by name")

	byCategory, err := repo.ListProducts(ctx, domain.ProductFilter{Category: domain.CategorySweater})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, sweater.ID, byCategory[0].ID)

	bySize, err := repo.ListProducts(ctx, domain.ProductFilter{Size: "S"})
	require.NoError(t, err)
	require.Len(t, bySize, 1)
	assert.Equal(t, pants.ID, bySize[0].ID)

	none, err := repo.ListProducts(ctx, domain.ProductFilter{Category: domain.CategoryJacket})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestRestock(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Shorts", "15", 2)

	qty, err := repo.Restock(ctx, p.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, 10, qty)

	_, err = repo.Restock(ctx, "missing", 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRestock_RejectsOverflow(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Shorts", "15", 5)

	_, err := repo.Restock(ctx, p.ID, math.MaxInt64)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = repo.Restock(ctx, p.ID, domain.MaxStock)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.False(t, errors.Is(err, domain.ErrNotFound))

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity, "rejected restock leaves stock alone")

	qty, err := repo.Restock(ctx, p.ID, domain.MaxStock-5)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxStock, qty)
}

func TestUpdateProduct(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Sweater", "40", 3)
	other := seedProduct(t, repo, "Pants", "30", 1)

	p.Name = "Wool Sweater"
	p.Price = decimal.RequireFromString("45.90")
	p.Quantity = 99
	require.NoError(t, repo.UpdateProduct(ctx, p))

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wool Sweater", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("45.90")))
	assert.Equal(t, 3, got.Quantity, "update never touches stock")

	p.Barcode = other.Barcode
	require.ErrorIs(t, repo.UpdateProduct(ctx, p), domain.ErrDuplicateBarcode)

	missing := newProduct("Ghost", "1", 0)
	require.ErrorIs(t, repo.UpdateProduct(ctx, missing), domain.ErrNotFound)
}

func TestDeleteProduct(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Jacket", "80", 2)
	line := cartLine("u1", p.ID, 1)
	require.NoError(t, repo.MergeCartLine(ctx, line))

	err := repo.DeleteProduct(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrProductInUse)

	require.NoError(t, repo.DeleteCartLine(ctx, line.ID))
	require.NoError(t, repo.DeleteProduct(ctx, p.ID))

	_, err = repo.GetProduct(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, repo.DeleteProduct(ctx, p.ID), domain.ErrNotFound)
}

func TestStockQuery_LockingReadOnMySQL(t *testing.T) {
	assert.Contains(t, stockQuery(DialectMySQL), "FOR SHARE")
	assert.NotContains(t, stockQuery(DialectSQLite), "FOR SHARE")
}

func TestMergeCartLine_MergesIntoOneLine(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Jacket", "80", 5)

	require.NoError(t, repo.MergeCartLine(ctx, cartLine("u1", p.ID, 2)))
	require.NoError(t, repo.MergeCartLine(ctx, cartLine("u1", p.ID, 3)))

	items, err := repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, p.Name, items[0].Product.Name)
}

func TestMergeCartLine_RejectsOverStock(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Jacket", "80", 5)

	require.NoError(t, repo.MergeCartLine(ctx, cartLine("u1", p.ID, 3)))

	err := repo.MergeCartLine(ctx, cartLine("u1", p.ID, 4))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	available, ok := domain.AvailableStock(err)
	require.True(t, ok)
	assert.Equal(t, 5, available)

	err = repo.MergeCartLine(ctx, cartLine("u2", p.ID, 6))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	items, err := repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity, "rejected merge must not change the line")

	items, err = repo.ListCartItems(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMergeCartLine_UnknownProduct(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)

	err := repo.MergeCartLine(context.Background(), cartLine("u1", "missing", 1))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetCartLineQuantity(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Tee", "10", 5)
	line := cartLine("u1", p.ID, 1)
	require.NoError(t, repo.MergeCartLine(ctx, line))

	require.NoError(t, repo.SetCartLineQuantity(ctx, line.ID, 5))
	got, err := repo.GetCartLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)

	// unchanged value still succeeds
	require.NoError(t, repo.SetCartLineQuantity(ctx, line.ID, 5))

	err = repo.SetCartLineQuantity(ctx, line.ID, 6)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	available, _ := domain.AvailableStock(err)
	assert.Equal(t, 5, available)

	err = repo.SetCartLineQuantity(ctx, "missing", 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCartLine(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Tee", "10", 5)
	line := cartLine("u1", p.ID, 1)
	require.NoError(t, repo.MergeCartLine(ctx, line))

	require.NoError(t, repo.DeleteCartLine(ctx, line.ID))
	require.ErrorIs(t, repo.DeleteCartLine(ctx, line.ID), domain.ErrNotFound)

	_, err := repo.GetCartLine(ctx, line.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithinTx_CommitsOrder(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Sweater", "10", 5)
	require.NoError(t, repo.MergeCartLine(ctx, cartLine("u1", p.ID, 5)))

	order := domain.Order{
		ID:          uuid.NewString(),
		UserID:      "u1",
		TotalAmount: decimal.RequireFromString("50"),
		CreatedAt:   time.Now().UTC(),
		Lines: []domain.OrderLine{{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    5,
		}},
	}

	err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		items, err := tx.ListCartItems(ctx, "u1")
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, p.ID, 5); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			Amount:      order.TotalAmount,
			Description: domain.OrderLedgerDescription(order.ID, "u1"),
			CreatedAt:   order.CreatedAt,
		}); err != nil {
			return err
		}
		return tx.DeleteCartLines(ctx, []domain.CartLine{items[0].CartLine})
	})
	require.NoError(t, err)

	got, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(order.TotalAmount))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 5, got.Lines[0].Quantity)

	stock, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Quantity)

	items, err := repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	ledger, err := repo.ListLedgerEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ledger.Entries, 1)
	assert.True(t, ledger.Balance.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, "Order #"+order.ID+" by user u1", ledger.Entries[0].Description)

	orders, err := repo.ListOrdersByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Sweater", "10", 5)
	boom := errors.New("boom")

	err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		if err := tx.InsertOrder(ctx, domain.Order{
			ID:          "order-1",
			UserID:      "u1",
			TotalAmount: decimal.RequireFromString("20"),
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, p.ID, 2); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetOrder(ctx, "order-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func TestDecrementStock_Insufficient(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Sweater", "10", 1)

	err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.DecrementStock(ctx, p.ID, 2)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	available, ok := domain.AvailableStock(err)
	require.True(t, ok)
	assert.Equal(t, 1, available)
}

func TestDecrementStock_ConcurrentNeverNegative(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Last Tee", "10", 3)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
				return tx.DecrementStock(ctx, p.ID, 1)
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, success)
	assert.Equal(t, 7, rejected)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)
}

func TestDeleteCartLines_ConflictOnChangedLine(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, repo, "Tee", "10", 5)
	line := cartLine("u1", p.ID, 2)
	require.NoError(t, repo.MergeCartLine(ctx, line))

	stale := line
	stale.Quantity = 1

	err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.DeleteCartLines(ctx, []domain.CartLine{stale})
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	items, err := repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestListLedgerEntries_LimitKeepsFullBalance(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	for i, amount := range []string{"10", "20.50", "5"} {
		err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
				ID:          uuid.NewString(),
				OrderID:     uuid.NewString(),
				Amount:      decimal.RequireFromString(amount),
				Description: "entry",
				CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
			})
		})
		require.NoError(t, err)
	}

	ledger, err := repo.ListLedgerEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ledger.Entries, 2)
	assert.True(t, ledger.Entries[0].Amount.Equal(decimal.RequireFromString("5")), "newest first")
	assert.Equal(t, "35.5", ledger.Balance.String())
}

func TestOutboxEvents_PendingAndMarkSent(t *testing.T) {
	repo, _ := newSQLiteAdapter(t)
	ctx := context.Background()

	order := domain.Order{
		ID:          uuid.NewString(),
		UserID:      "u1",
		TotalAmount: decimal.RequireFromString("12.00"),
		CreatedAt:   time.Now().UTC(),
	}
	event, err := domain.NewOrderPlacedEvent(uuid.NewString(), order)
	require.NoError(t, err)

	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.InsertOutboxEvent(ctx, event)
	}))

	pending, err := repo.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventOrderPlaced, pending[0].Type)
	assert.Equal(t, order.ID, pending[0].AggregateID)

	var payload domain.OrderPlacedPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, order.ID, payload.OrderID)

	require.NoError(t, repo.MarkEventSent(ctx, event.ID, time.Now().UTC()))

	pending, err = repo.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMySQL_MigrateAndMerge(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, DialectMySQL))

	repo := NewSQLAdapter(db, DialectMySQL)
	p := seedProduct(t, repo, "MySQL Tee", "10", 2)
	user := "mysql-" + uuid.NewString()

	require.NoError(t, repo.MergeCartLine(ctx, cartLine(user, p.ID, 2)))
	// same quantity again: the row matches but its value is unchanged
	line, err := repo.ListCartItems(ctx, user)
	require.NoError(t, err)
	require.Len(t, line, 1)
	require.NoError(t, repo.SetCartLineQuantity(ctx, line[0].ID, 2))

	err = repo.MergeCartLine(ctx, cartLine(user, p.ID, 1))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.NoError(t, repo.DeleteCartLine(ctx, line[0].ID))

	// Last unit: a transaction whose snapshot predates a competing commit
	// must still report the stock left after that commit.
	last := seedProduct(t, repo, "MySQL Last Unit", "10", 1)
	loser := "mysql-" + uuid.NewString()
	require.NoError(t, repo.MergeCartLine(ctx, cartLine(loser, last.ID, 1)))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	stale := &sqlTx{tx: tx, dialect: DialectMySQL}

	items, err := stale.ListCartItems(ctx, loser)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].Product.Quantity)

	err = repo.WithinTx(ctx, func(ctx context.Context, winner port.Tx) error {
		return winner.DecrementStock(ctx, last.ID, 1)
	})
	require.NoError(t, err)

	err = stale.DecrementStock(ctx, last.ID, 1)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	available, ok := domain.AvailableStock(err)
	require.True(t, ok)
	assert.Equal(t, 0, available)
	require.NoError(t, tx.Rollback())

	ledger, err := repo.ListLedgerEntries(ctx, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(ledger.Entries), 1)
	assert.False(t, ledger.Balance.IsNegative())
}
