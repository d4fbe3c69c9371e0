package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/simaogato/bucketbook-backend/internal/adapter/gcs"
	grpcadapter "github.com/simaogato/bucketbook-backend/internal/adapter/grpc"
	httpadapter "github.com/simaogato/bucketbook-backend/internal/adapter/http"
	"github.com/simaogato/bucketbook-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bucketbook-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/platform/config"
	"github.com/simaogato/bucketbook-backend/internal/platform/lock"
	"github.com/simaogato/bucketbook-backend/internal/platform/logger"
	"github.com/simaogato/bucketbook-backend/internal/usecase/allocator"
	"github.com/simaogato/bucketbook-backend/internal/usecase/dashboard"
	"github.com/simaogato/bucketbook-backend/internal/usecase/importer"
	"github.com/simaogato/bucketbook-backend/internal/usecase/ledger"
	"github.com/simaogato/bucketbook-backend/internal/usecase/registry"
)

// storage bundles the repositories with the transactor that scopes them
type storage struct {
	repos      domain.Repositories
	transactor domain.Transactor
	close      func() error
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load(os.Getenv("BUCKETBOOK_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Mode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync() //nolint:errcheck

	ctx := context.Background()

	// 2. Setup storage
	store, err := openStorage(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.close()

	// 3. Locking: Redis when configured, otherwise in-process
	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Addr != "" {
		client := goredislib.NewClient(&goredislib.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("Failed to reach redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		locker = lock.NewRedis(client, lock.DefaultOptions(), appLogger)
		appLogger.Info("using redis lock", zap.String("addr", cfg.Redis.Addr))
	}

	// 4. Statement sources
	var source importer.Source
	if cfg.StatementsFromGCS {
		gcsSource, err := gcs.NewSource(ctx)
		if err != nil {
			appLogger.Fatal("Failed to create storage client", zap.Error(err))
		}
		defer gcsSource.Close()
		source = gcsSource
	}

	// 5. Initialize Services (Use Cases)
	registryService := registry.NewService(store.repos.Accounts, store.repos.Buckets, locker, appLogger)
	ledgerService := ledger.NewService(store.repos.Buckets, store.repos.Entries, appLogger)
	allocatorService := allocator.NewService(store.transactor, ledgerService, appLogger)
	importerService := importer.NewService(registryService, ledgerService, source, appLogger)
	dashboardService := dashboard.NewDashboardService(store.repos.Buckets, store.repos.Entries)

	// 6. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(appLogger),
			grpcadapter.AuthInterceptor(cfg.APIToken),
			grpcadapter.AccountInterceptor(grpcadapter.FullMethod(grpcadapter.MethodCreateAccount)),
		),
	)
	grpcAdapter := grpcadapter.NewServer(registryService, ledgerService, allocatorService, importerService, dashboardService, appLogger)
	grpcadapter.RegisterLedgerServiceServer(grpcServer, grpcAdapter)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		appLogger.Fatal("Failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		appLogger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("Failed to serve gRPC server", zap.Error(err))
		}
	}()

	// 7. Start HTTP Server
	statementHandler := httpadapter.NewStatementHandler(registryService, importerService, appLogger)
	httpServer := httpadapter.NewServer(appLogger, cfg.HTTPAddr, cfg.Mode, cfg.APIToken, statementHandler)
	go func() {
		if err := httpServer.Run(); err != nil {
			appLogger.Fatal("Failed to serve HTTP server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	waitForShutdown(appLogger, cfg.ShutdownTimeout, grpcServer, httpServer)
}

// openStorage connects the configured backend. Postgres is retried for a
// few seconds so the server can start alongside the database container.
func openStorage(cfg *config.Config, appLogger *zap.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		appLogger.Warn("using in-memory storage; data is lost on exit")
		store := memory.NewStore()
		return &storage{repos: store.Repositories(), transactor: store, close: func() error { return nil }}, nil
	}

	var (
		db  *postgres.DB
		err error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		if db, err = postgres.NewDB(cfg.Database.ConnString()); err == nil {
			break
		}
		appLogger.Warn("database not ready", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.Migrate(appLogger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &storage{repos: db.Repositories(), transactor: db, close: db.Close}, nil
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the servers
func waitForShutdown(appLogger *zap.Logger, timeout time.Duration, grpcServer *grpclib.Server, httpServer *httpadapter.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	appLogger.Info("Shutting down gracefully", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	grpcServer.GracefulStop()
	appLogger.Info("servers stopped")
}
