// Package main runs the facts worker: it answers each new facts_request with
// a capsule of resort statistics and prose in facts_response.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/app"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "factsworker: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, logger, err := app.Bootstrap(cfgPath, "factsworker")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := app.RequireSharedSlots(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	w, err := services.FactsWorker()
	if err != nil {
		return err
	}

	admin := &http.Server{
		Addr:              cfg.Server.AdminAddr,
		Handler:           app.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := app.Serve(ctx, admin, cfg.Server.ShutdownTimeout, logger.Named("admin")); err != nil {
			logger.Error("admin server error", zap.Error(err))
		}
	}()

	logger.Info("facts worker started")
	app.RunWorkers(ctx, w)
	logger.Info("shutdown complete")
	return nil
}
