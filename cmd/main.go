package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	grpcRouter "github.com/dtroode/accounts-server/internal/api/grpc/router"
	grpcServer "github.com/dtroode/accounts-server/internal/api/grpc/server"
	httpctx "github.com/dtroode/accounts-server/internal/api/http/context"
	"github.com/dtroode/accounts-server/internal/api/http/handler"
	httpRouter "github.com/dtroode/accounts-server/internal/api/http/router"
	httpServer "github.com/dtroode/accounts-server/internal/api/http/server"
	"github.com/dtroode/accounts-server/internal/config"
	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/metrics"
	"github.com/dtroode/accounts-server/internal/model"
	"github.com/dtroode/accounts-server/internal/password"
	"github.com/dtroode/accounts-server/internal/repository/memory"
	"github.com/dtroode/accounts-server/internal/repository/postgres"
	"github.com/dtroode/accounts-server/internal/server"
	"github.com/dtroode/accounts-server/internal/service"
	storage "github.com/dtroode/accounts-server/internal/storage/minio"
	"github.com/dtroode/accounts-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const (
	shutdownTimeout     = 10 * time.Second
	healthProbeInterval = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	userStore, txManager, pingers, closeStore := openStore(ctx, cfg.Database, logger)
	defer closeStore()

	var m *metrics.Metrics
	authOpts := []service.Option{
		service.WithSessionTTL(cfg.Auth.SessionTTL),
		service.WithRevokeOnPasswordChange(cfg.Auth.RevokeOnPasswordChange),
	}
	if cfg.MetricsEnabled {
		m = metrics.New()
		authOpts = append(authOpts, service.WithRecorder(m))
	}

	hasher := password.NewBcrypt(cfg.Auth.BcryptCost)
	tokens := token.NewSecure(cfg.Auth.TokenBytes)
	authService := service.NewAuth(userStore, txManager, hasher, tokens, logger, authOpts...)

	var avatarService handler.AvatarService
	if cfg.Storage.Enabled {
		storageClient, err := storage.Dial(ctx,
			cfg.Storage.Endpoint,
			cfg.Storage.AccessKey,
			cfg.Storage.SecretKey,
			cfg.Storage.Bucket,
			cfg.Storage.UseSSL)
		if err != nil {
			logger.Fatal("failed to initialize storage client", "error", err)
		}
		pingers["storage"] = storageClient
		avatarService = service.NewAvatar(userStore, txManager, storageClient, logger, cfg.Storage.MaxAvatarBytes)
	}

	r := httpRouter.New(authService, avatarService, pingers, m, httpctx.NewManager(), httpRouter.Config{
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger)
	servers := []model.Server{
		httpServer.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", cfg.HTTP.Port)),
	}

	var health *grpcRouter.Router
	if cfg.GRPC.Enabled {
		health = grpcRouter.New(pingers, logger)
		go health.Watch(ctx, healthProbeInterval)
		servers = append(servers, grpcServer.NewGRPCServer(health.Register(), fmt.Sprintf(":%s", cfg.GRPC.Port)))
	}

	sl := server.NewSecurityLayer(cfg.HTTP)

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s)
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	if health != nil {
		health.Shutdown()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

// openStore connects the configured user store. The returned pinger map is
// shared by the readiness probes.
func openStore(ctx context.Context, cfg config.Database, logger *logger.Logger) (model.UserStore, model.TxManager, map[string]model.Pinger, func()) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		store := memory.NewStore()
		return store, store, map[string]model.Pinger{"database": store}, func() {}
	}

	conn, err := postgres.NewConnection(ctx, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}

	closeFn := func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	return postgres.NewUserRepository(conn.DB), postgres.NewTxManager(conn.DB), map[string]model.Pinger{"database": conn}, closeFn
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
