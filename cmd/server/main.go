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

	"github.com/DoyleJ11/oxo-escrow/internal/config"
	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/httpapi"
	"github.com/DoyleJ11/oxo-escrow/internal/hub"
	"github.com/DoyleJ11/oxo-escrow/internal/ledger"
	"github.com/DoyleJ11/oxo-escrow/internal/store"
	"github.com/DoyleJ11/oxo-escrow/internal/table"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		bank     ledger.Ledger = ledger.NewMemory()
		recorder table.Recorder
		restored []table.Restored
	)
	if cfg.DatabaseURL != "" {
		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		bank, recorder = st, st
		if restored, err = st.Restore(ctx, st, logger); err != nil {
			return err
		}
		logger.Info("using postgres ledger", zap.Int("restored_games", len(restored)))
	} else {
		logger.Warn("DATABASE_URL not set, balances are kept in memory")
	}

	// The hub outlives the signal so in-flight requests can finish against it.
	h := hub.NewHub(context.WithoutCancel(ctx), hub.Options{
		Bank:     bank,
		Rules:    engine.Rules{FirstMover: cfg.FirstMover},
		Recorder: recorder,
		Logger:   logger,
		Restore:  restored,
	})

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, bank, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("first_mover", string(cfg.FirstMover)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if hubErr := h.Shutdown(shutdownCtx); hubErr != nil {
			logger.Warn("hub shutdown", zap.Error(hubErr))
		}
		return err
	})
	return g.Wait()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogLevel == zap.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zc.Build()
}
