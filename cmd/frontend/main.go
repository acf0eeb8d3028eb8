// Package main runs the front-end: the HTTP API that hands requests to the
// workers and keeps the visit log. With server.embed_workers it also runs
// both workers in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/api"
	"github.com/JakeFAU/resort-relay/internal/app"
	"github.com/JakeFAU/resort-relay/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "frontend: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, logger, err := app.Bootstrap(cfgPath, "frontend")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	relay, err := services.Caller()
	if err != nil {
		return err
	}
	store, err := services.Entries(ctx)
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready: func(ctx context.Context) error {
			_, _, err := services.WeatherPair().Result.Read(ctx)
			return err
		},
	}
	if events := services.Events(); events != nil {
		apiCfg.Events = events
	}
	server := api.NewServer(relay, store, apiCfg, logger.Named("api"))

	workersDone := make(chan struct{})
	if cfg.Server.EmbedWorkers {
		weatherWorker, err := services.WeatherWorker()
		if err != nil {
			return err
		}
		factsWorker, err := services.FactsWorker()
		if err != nil {
			return err
		}
		go func(workers ...*worker.Worker) {
			defer close(workersDone)
			logger.Info("embedded workers started")
			app.RunWorkers(ctx, workers...)
		}(weatherWorker, factsWorker)
	} else {
		close(workersDone)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	serveErr := app.Serve(ctx, srv, cfg.Server.ShutdownTimeout, logger)
	if serveErr != nil {
		logger.Error("http server error", zap.Error(serveErr))
		stop()
	}
	<-workersDone
	logger.Info("shutdown complete")
	return serveErr
}
