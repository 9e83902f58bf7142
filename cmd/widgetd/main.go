package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/widget/internal/backend"
	"github.com/xiaot623/gogo/widget/internal/config"
	"github.com/xiaot623/gogo/widget/internal/hub"
	internalhttp "github.com/xiaot623/gogo/widget/internal/http"
	"github.com/xiaot623/gogo/widget/internal/logging"
	"github.com/xiaot623/gogo/widget/internal/policy"
	"github.com/xiaot623/gogo/widget/internal/repository"
	"github.com/xiaot623/gogo/widget/internal/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "widgetd",
		Short:         "Serve the embeddable chat widget",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.HTTPPort = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			logger := logging.Setup(cfg.LogLevel, os.Stderr)
			if err := run(cmd.Context(), cfg, logger); err != nil {
				logger.Error().Err(err).Msg("widgetd failed")
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port (overrides HTTP_PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (overrides LOG_LEVEL)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().
		Int("port", cfg.HTTPPort).
		Str("public_url", cfg.PublicURL).
		Str("storage", cfg.StorageDriver).
		Msg("Starting widgetd")

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return err
	}

	chatBackend := backend.New(cfg.BackendURL, cfg.BackendMode, logging.Component(logger, "backend"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectionHub := hub.NewHub(logging.Component(logger, "hub"))
	wsServer := ws.NewServer(cfg, connectionHub, chatBackend, storage, logging.Component(logger, "ws"))
	httpServer := internalhttp.NewServer(cfg, connectionHub, engine, wsServer.HandleWebSocket, logging.Component(logger, "http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		connectionHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down widgetd...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to shutdown HTTP server gracefully")
		}
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Abandoned in-flight sends")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("widgetd stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (repository.Storage, error) {
	switch repository.StoreType(cfg.StorageDriver) {
	case repository.StoreTypeSQLite:
		return repository.NewStorage(repository.StoreTypeSQLite, repository.WithSQLiteDSN(cfg.DatabaseURL))
	case repository.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return repository.NewStorage(repository.StoreTypeRedis,
			repository.WithRedisClient(client),
			repository.WithRedisTTL(cfg.RedisTTL),
		)
	default:
		return repository.NewStorage(repository.StoreType(cfg.StorageDriver))
	}
}
