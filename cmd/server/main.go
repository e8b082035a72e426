package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/handler/rpc"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/worker"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dialect, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	zl.Info("connected to database", zap.String("driver", string(dialect)))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	zl.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	sqlAdapter := storage.NewSQLAdapter(db, dialect)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.EventStream)

	opts := service.Options{
		TxTimeout:       cfg.TxTimeout,
		CheckoutLockTTL: cfg.CheckoutLockTTL,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}
	catalogService := service.NewCatalogService(sqlAdapter, zl, opts)
	cartService := service.NewCartService(sqlAdapter, zl, opts)
	checkoutService := service.NewCheckoutService(sqlAdapter, redisAdapter, zl, opts)
	queryService := service.NewQueryService(sqlAdapter, opts)

	relay := worker.NewOutboxRelay(sqlAdapter, redisAdapter, zl.Named("outbox"), cfg.OutboxInterval, cfg.OutboxBatch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLoggingInterceptor(zl.Named("grpc"))))
	rpc.RegisterStorefrontServer(grpcServer, handler.NewGRPCHandler(cartService, checkoutService, queryService))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	go func() {
		zl.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			zl.Error("gRPC server error", zap.Error(err))
		}
	}()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpHandler := handler.NewHTTPHandler(catalogService, cartService, checkoutService, queryService, zl.Named("http"))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zl.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP shutdown", zap.Error(err))
	}
	zl.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	zl.Info("gRPC server stopped")

	cancel()
	wg.Wait()
	zl.Info("outbox relay stopped")

	return nil
}

func openDatabase(cfg config.Config) (*sql.DB, storage.Dialect, error) {
	switch storage.Dialect(cfg.DBDriver) {
	case storage.DialectMySQL:
		db, err := storage.OpenMySQL(cfg.MySQLDSN)
		return db, storage.DialectMySQL, err
	default:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		return db, storage.DialectSQLite, err
	}
}
