package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/detection_backend/internal/auth"
	"github.com/Skotchmaster/detection_backend/internal/detections"
	"github.com/Skotchmaster/detection_backend/internal/events"
	"github.com/Skotchmaster/detection_backend/internal/hash"
	"github.com/Skotchmaster/detection_backend/internal/httpserver"
	"github.com/Skotchmaster/detection_backend/internal/maintenance"
	"github.com/Skotchmaster/detection_backend/internal/metrics"
	"github.com/Skotchmaster/detection_backend/internal/revocation"
	"github.com/Skotchmaster/detection_backend/internal/throttle"
	"github.com/Skotchmaster/detection_backend/internal/tokens"
	"github.com/Skotchmaster/detection_backend/internal/users"
	"github.com/Skotchmaster/detection_backend/pkg/config"
	"github.com/Skotchmaster/detection_backend/pkg/db"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx = logging.IntoContext(ctx, logger)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			logger.Error("db_close_failed", "error", err)
		}
	}()

	detStore := detections.NewStore(gdb)
	if err := detStore.Migrate(ctx); err != nil {
		return err
	}

	hasher := hash.New(cfg.BcryptCost)
	policy := users.DefaultPolicy()
	policy.PasswordMin = cfg.PasswordMin
	policy.Roles = policy.Roles[:0]
	for _, r := range cfg.Roles {
		policy.Roles = append(policy.Roles, users.Role(r))
	}

	userStore := users.NewStore(hasher, policy)
	seeds := make([]users.SeedUser, 0, len(cfg.SeedUsers))
	for _, s := range cfg.SeedUsers {
		seeds = append(seeds, users.SeedUser{Username: s.Username, Password: s.Password, Role: users.Role(s.Role)})
	}
	if err := userStore.Seed(ctx, seeds); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	if len(seeds) == 0 {
		logger.Warn("no_seed_users", "reason", "SEED_USERS is empty, nobody can log in")
	}

	codec, err := tokens.NewCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	publisher := events.New(cfg.KafkaBrokers, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("publisher_close_failed", "error", err)
		}
	}()

	m := metrics.New(nil)
	svc := auth.New(auth.Deps{
		Users:   userStore,
		Hasher:  hasher,
		Tokens:  codec,
		Revoked: revocation.New(),
		Throttle: throttle.New(throttle.Config{
			MaxAttempts: cfg.MaxAttempts,
			Window:      throttle.DefaultWindow,
			Lockout:     cfg.Lockout,
		}),
		Events:  publisher,
		Metrics: m,
	})

	sched, err := maintenance.New(maintenance.Config{
		RevocationSpec:       cfg.RevocationSpec,
		RevocationRetain:     cfg.RevocationRetain,
		ThrottleSpec:         cfg.ThrottleSpec,
		DetectionsSpec:       cfg.DetectionsSpec,
		DetectionsRetainDays: cfg.DetectionsRetainDays,
	}, svc, detStore, logger)
	if err != nil {
		return err
	}
	sched.Start()

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = echo.ExtractIPFromXFFHeader()
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		Auth:       svc,
		Detections: detStore,
		Events:     publisher,
		Metrics:    m,
		Logger:     logger,
		Ready:      detStore.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		logger.Info("server_started", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("echo start: %w", err)
		}
	}

	logger.Info("server_stopping")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("maintenance_stop_failed", "error", err)
	}
	return nil
}
