package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/statestore/internal/auth"
	"github.com/vyrodovalexey/statestore/internal/config"
	"github.com/vyrodovalexey/statestore/internal/datasource"
	"github.com/vyrodovalexey/statestore/internal/handler"
	"github.com/vyrodovalexey/statestore/internal/idgen"
	"github.com/vyrodovalexey/statestore/internal/observer"
	"github.com/vyrodovalexey/statestore/internal/persist"
	"github.com/vyrodovalexey/statestore/internal/server"
	"github.com/vyrodovalexey/statestore/internal/state"
	"github.com/vyrodovalexey/statestore/internal/store"
)

// serveCmd starts the API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the statestore API server.

The server runs until SIGINT or SIGTERM. On shutdown it closes WebSocket
streams, drains HTTP requests, waits for in-flight user store operations
and closes the snapshot backend, all within the shutdown timeout.

Example:
  statestore serve
  statestore serve -c statestore.yaml
  APP_PERSIST_BACKEND=sqlite APP_PERSIST_PATH=./data statestore serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (default $APP_CONFIG_FILE)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.Bool("websocket_enabled", cfg.WebSocketEnabled),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("persist_backend", cfg.Persist.Backend),
		zap.String("overlap_policy", cfg.OverlapPolicy),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// serve runs the server until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	authenticator, err := auth.New(cfg.AuthMode, cfg.BasicAuthUsers, cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	backend, err := persist.New(ctx, cfg.Persist.Backend, cfg.Persist.Path)
	if err != nil {
		return fmt.Errorf("opening snapshot backend: %w", err)
	}
	if backend != nil {
		defer func() {
			if closeErr := backend.Close(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("closing snapshot backend: %w", closeErr))
			}
		}()
	}

	stores, err := buildStores(cfg, logger, backend)
	if err != nil {
		return err
	}

	srv := server.New(cfg, logger, stores, authenticator)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		if err := stores.Users.Drain(shutdownCtx); err != nil {
			logger.Warn("user store operations still in flight at shutdown", zap.Error(err))
		}

		return nil
	})

	return g.Wait()
}

// buildStores wires the stores to the simulated data source, the trace and
// metrics observers and the snapshot backend. backend may be nil.
func buildStores(cfg *config.Config, logger *zap.Logger, backend persist.Backend) (handler.Stores, error) {
	policy, err := store.ParseOverlapPolicy(cfg.OverlapPolicy)
	if err != nil {
		return handler.Stores{}, err
	}

	ids := idgen.New()
	src := datasource.NewSimulatedAPI(datasource.SimulatedConfig{
		ListLatency:   cfg.Simulator.ListLatency,
		CreateLatency: cfg.Simulator.CreateLatency,
		DeleteLatency: cfg.Simulator.DeleteLatency,
		FailureRate:   cfg.Simulator.FailureRate,
	}, ids, logger.Named("datasource"))

	observers := []state.Observer{observer.NewLogging(logger)}
	if cfg.MetricsEnabled {
		observers = append(observers, observer.NewMetrics())
	}

	opts := []store.Option{
		store.WithLogger(logger),
		store.WithObservers(observers...),
		store.WithOverlapPolicy(policy),
	}
	if backend != nil {
		opts = append(opts, store.WithPersister(backend))
	}

	return handler.Stores{
		Users:   store.NewUserStore(src, opts...),
		Counter: store.NewCounterStore(opts...),
		Todos:   store.NewTodoStore(ids, opts...),
		Session: store.NewSessionStore(opts...),
	}, nil
}
