// Package app initializes and holds long-lived relay services, acting as a
// dependency injection container for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/caller"
	"github.com/JakeFAU/resort-relay/internal/clock/system"
	"github.com/JakeFAU/resort-relay/internal/config"
	"github.com/JakeFAU/resort-relay/internal/entries"
	memoryentries "github.com/JakeFAU/resort-relay/internal/entries/memory"
	"github.com/JakeFAU/resort-relay/internal/entries/postgres"
	"github.com/JakeFAU/resort-relay/internal/facts"
	collyfetcher "github.com/JakeFAU/resort-relay/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/resort-relay/internal/fetcher/headless"
	"github.com/JakeFAU/resort-relay/internal/headless/detector"
	"github.com/JakeFAU/resort-relay/internal/id/uuid"
	"github.com/JakeFAU/resort-relay/internal/metrics"
	"github.com/JakeFAU/resort-relay/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/resort-relay/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/resort-relay/internal/publisher/pubsub"
	"github.com/JakeFAU/resort-relay/internal/relay"
	"github.com/JakeFAU/resort-relay/internal/slot"
	fileslot "github.com/JakeFAU/resort-relay/internal/slot/file"
	gcsslot "github.com/JakeFAU/resort-relay/internal/slot/gcs"
	memoryslot "github.com/JakeFAU/resort-relay/internal/slot/memory"
	redisslot "github.com/JakeFAU/resort-relay/internal/slot/redis"
	"github.com/JakeFAU/resort-relay/internal/weather"
	"github.com/JakeFAU/resort-relay/internal/worker"
)

// ErrSharedSlotsRequired is returned when a standalone worker is configured
// with process-local slots no caller could reach.
var ErrSharedSlotsRequired = errors.New("memory slot backend requires server.embed_workers")

// App holds the slot pairs and the shared services built from Config.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  relay.Clock
	ids    *uuid.Generator

	weatherPair slot.Pair
	factsPair   slot.Pair

	publisher relay.Publisher
	events    *memorypublisher.Publisher

	mu      sync.Mutex
	closers []func()
}

// New opens the configured slot backend and publisher.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}

	opener, err := a.openSlots(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	names := cfg.Slot.Names
	if a.weatherPair, err = slot.OpenPair(opener, names.WeatherRequest, names.WeatherResponse); err != nil {
		a.Close()
		return nil, fmt.Errorf("open weather slots: %w", err)
	}
	if a.factsPair, err = slot.OpenPair(opener, names.FactsRequest, names.FactsResponse); err != nil {
		a.Close()
		return nil, fmt.Errorf("open facts slots: %w", err)
	}

	if err := a.openPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("relay services initialized",
		zap.String("slot_backend", cfg.Slot.Backend),
		zap.Bool("publishing", a.publisher != nil),
	)
	return a, nil
}

// RequireSharedSlots fails when cfg would start a worker that no other
// process can reach.
func RequireSharedSlots(cfg config.Config) error {
	if cfg.Slot.Backend == config.BackendMemory && !cfg.Server.EmbedWorkers {
		return ErrSharedSlotsRequired
	}
	return nil
}

func (a *App) openSlots(ctx context.Context) (slot.Opener, error) {
	sc := a.cfg.Slot
	switch sc.Backend {
	case config.BackendMemory:
		return memoryslot.NewStore(), nil
	case config.BackendFile:
		store, err := fileslot.New(sc.File)
		if err != nil {
			return nil, fmt.Errorf("open file slots: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		client, err := redisslot.NewClient(ctx, sc.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close redis client failed", zap.Error(err))
			}
		})
		store, err := redisslot.New(client, sc.Redis.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close storage client failed", zap.Error(err))
			}
		})
		store, err := gcsslot.New(client, sc.GCS)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown slot backend %q", sc.Backend)
	}
}

func (a *App) openPublisher(ctx context.Context) error {
	ps := a.cfg.PubSub
	switch {
	case ps.TopicName == "":
		return nil
	case ps.ProjectID == "":
		a.events = memorypublisher.New(memorypublisher.DefaultCapacity)
		a.publisher = a.events
		return nil
	}
	client, err := pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		_ = client.Close()
		return err
	}
	a.onClose(func() {
		pub.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client failed", zap.Error(err))
		}
	})
	a.publisher = pub
	return nil
}

// WeatherPair returns the weather mailbox and result slot.
func (a *App) WeatherPair() slot.Pair { return a.weatherPair }

// FactsPair returns the facts mailbox and result slot.
func (a *App) FactsPair() slot.Pair { return a.factsPair }

// Events returns the in-memory notification history, or nil when results are
// published elsewhere or not at all.
func (a *App) Events() *memorypublisher.Publisher { return a.events }

func (a *App) announcer(name string) *worker.Announcer {
	return worker.NewAnnouncer(a.publisher, a.cfg.PubSub.TopicName, a.clock, a.logger.Named(name))
}

// WeatherWorker builds the weather worker against the configured upstream.
func (a *App) WeatherWorker() (*worker.Worker, error) {
	client, err := weather.NewClient(nil, a.cfg.Weather.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("build weather client: %w", err)
	}
	return weather.NewWorker(
		a.weatherPair,
		client,
		a.announcer("weather.announcer"),
		a.cfg.Weather.PollInterval,
		a.logger.Named("weather"),
	)
}

// FactsWorker builds the facts worker with its fetcher, limiter and optional
// headless renderer.
func (a *App) FactsWorker() (*worker.Worker, error) {
	fc := a.cfg.Facts
	opts := []facts.Option{
		facts.WithLimiter(ratelimit.New(fc.RateLimit)),
		facts.WithAnnouncer(a.announcer("facts.announcer")),
	}
	if hc := a.cfg.Headless; hc.Enabled {
		if hc.UserAgent == "" {
			hc.UserAgent = fc.UserAgent
		}
		renderer, err := headlessfetcher.NewChromedp(hc)
		if err != nil {
			a.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			a.onClose(renderer.Close)
			opts = append(opts,
				facts.WithRenderer(renderer),
				facts.WithPromoter(detector.NewHeuristic(fc.PromotionThreshold)),
			)
		}
	}
	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: fc.UserAgent, Timeout: fc.Timeout})
	h, err := facts.NewHandler(a.factsPair, fetcher, facts.Config{BaseURL: fc.BaseURL}, a.logger.Named("facts"), opts...)
	if err != nil {
		return nil, fmt.Errorf("build facts handler: %w", err)
	}
	return facts.NewWorker(h, fc.PollInterval)
}

// Caller builds the hand-off client used by the front-end.
func (a *App) Caller() (*caller.Caller, error) {
	return caller.New(a.weatherPair, a.factsPair, a.cfg.Handoff, a.logger.Named("caller"))
}

// Entries opens the configured visit log store.
func (a *App) Entries(ctx context.Context) (entries.Store, error) {
	switch a.cfg.DB.Backend {
	case config.BackendPostgres:
		store, err := postgres.New(ctx, a.cfg.DB.Postgres(), a.ids, a.clock)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		if a.cfg.DB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		return memoryentries.New(a.ids, a.clock), nil
	}
}

// IDs returns the shared ID generator.
func (a *App) IDs() *uuid.Generator { return a.ids }

// RunWorkers runs every worker until ctx ends.
func RunWorkers(ctx context.Context, workers ...*worker.Worker) {
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// AdminHandler serves liveness and Prometheus metrics for worker processes.
func AdminHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (a *App) onClose(fn func()) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
