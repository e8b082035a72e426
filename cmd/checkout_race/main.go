package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	initialStock  = 20
	totalShoppers = 50
	unitPrice     = "10.00"
)

// Every shopper holds one unit of the same product in their cart and all
// of them check out at once. Exactly initialStock checkouts may succeed.
func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	dir, err := os.MkdirTemp("", "checkout-race")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	db, err := storage.OpenSQLite(filepath.Join(dir, "race.db"))
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, storage.DialectSQLite); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	sqlAdapter := storage.NewSQLAdapter(db, storage.DialectSQLite)
	redisAdapter := storage.NewRedisAdapter(rdb, "storefront:race:events")
	opts := service.DefaultOptions()
	opts.TxTimeout = 30 * time.Second
	opts.CheckoutLockTTL = time.Minute

	logger := zap.NewNop()
	catalog := service.NewCatalogService(sqlAdapter, logger, opts)
	cart := service.NewCartService(sqlAdapter, logger, opts)
	checkout := service.NewCheckoutService(sqlAdapter, redisAdapter, logger, opts)

	product, err := catalog.CreateProduct(ctx, service.NewProduct{
		Name:     "Race Hoodie",
		Barcode:  fmt.Sprintf("race-%d", time.Now().UnixNano()),
		Size:     "M",
		Category: string(domain.CategorySweater),
		Price:    decimal.RequireFromString(unitPrice),
		Quantity: initialStock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	runID := time.Now().UnixNano()
	users := make([]string, totalShoppers)
	for i := range users {
		users[i] = fmt.Sprintf("race-%d-user-%d", runID, i)
		if _, err := cart.AddOrMerge(ctx, users[i], product.ID, 1); err != nil {
			log.Fatalf("failed to fill cart for %s: %v", users[i], err)
		}
	}

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			_, err := checkout.Checkout(ctx, userID, "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("unexpected checkout error for %s: %v", userID, err)
			}
		}(userID)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== CHECKOUT RACE RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Shoppers:         %d\n", totalShoppers)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("============================================")

	if success == initialStock && soldOut == totalShoppers-initialStock {
		fmt.Printf("PASS: exactly %d checkouts succeeded\n", initialStock)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalShoppers-initialStock, success, soldOut)
	}

	finalStock, err := catalog.Availability(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)
	if finalStock == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", finalStock)
	}

	ledger, err := catalog.Ledger(ctx, totalShoppers)
	if err != nil {
		log.Fatalf("failed to read ledger: %v", err)
	}
	want := decimal.RequireFromString(unitPrice).Mul(decimal.NewFromInt(int64(success)))
	if ledger.Balance.Equal(want) && len(ledger.Entries) == int(success) {
		fmt.Printf("PASS: ledger balance %s over %d entries\n", ledger.Balance, len(ledger.Entries))
	} else {
		fmt.Printf("FAIL: expected ledger balance %s over %d entries, got %s over %d\n",
			want, success, ledger.Balance, len(ledger.Entries))
	}
}
