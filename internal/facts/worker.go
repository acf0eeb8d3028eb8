package facts

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/metrics"
	"github.com/JakeFAU/resort-relay/internal/relay"
	"github.com/JakeFAU/resort-relay/internal/slot"
	"github.com/JakeFAU/resort-relay/internal/worker"
)

// DefaultBaseURL is the article root used when none is configured.
const DefaultBaseURL = "https://en.wikipedia.org/wiki"

// Config controls the facts handler.
type Config struct {
	BaseURL string
}

// Promoter decides whether a plain fetch should be repeated headless.
type Promoter interface {
	ShouldPromote(resp relay.FetchResponse) bool
}

// Handler scrapes one article per new mailbox value. The mailbox is never
// cleared; a value equal to the last handled one is ignored.
type Handler struct {
	pair      slot.Pair
	fetcher   relay.Fetcher
	renderer  relay.Fetcher
	promoter  Promoter
	limiter   relay.Limiter
	announcer *worker.Announcer
	baseURL   string
	logger    *zap.Logger

	mu          sync.Mutex
	lastHandled string
}

// Option customizes a Handler.
type Option func(*Handler)

// WithRenderer sets a headless fetcher used when the plain fetch finds no
// statistics rows.
func WithRenderer(f relay.Fetcher) Option {
	return func(h *Handler) { h.renderer = f }
}

// WithPromoter restricts headless renders to pages p flags. Without one,
// every page lacking statistics rows is rendered.
func WithPromoter(p Promoter) Option {
	return func(h *Handler) { h.promoter = p }
}

// WithLimiter throttles article fetches.
func WithLimiter(l relay.Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithAnnouncer publishes an event after each result write.
func WithAnnouncer(a *worker.Announcer) Option {
	return func(h *Handler) { h.announcer = a }
}

// NewHandler builds a Handler.
func NewHandler(pair slot.Pair, fetcher relay.Fetcher, cfg Config, logger *zap.Logger, opts ...Option) (*Handler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		pair:    pair,
		fetcher: fetcher,
		baseURL: base,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// NewWorker wires a Handler into the shared poll loop.
func NewWorker(h *Handler, pollInterval time.Duration) (*worker.Worker, error) {
	return worker.New(h.pair.Mailbox, h, worker.Config{
		Name:         relay.WorkerFacts,
		PollInterval: pollInterval,
	}, h.logger)
}

// ArticleURL returns the article address for term.
func (h *Handler) ArticleURL(term string) string {
	return h.baseURL + "/" + url.PathEscape(Locator(term))
}

// Handle processes value unless it is empty or was the last one handled.
func (h *Handler) Handle(ctx context.Context, value string) {
	term := strings.TrimSpace(value)
	h.mu.Lock()
	if term == "" || term == h.lastHandled {
		h.mu.Unlock()
		return
	}
	h.lastHandled = term
	h.mu.Unlock()

	h.logger.Info("facts request received", zap.String("term", term))
	capsule := h.collect(ctx, term)
	if err := ctx.Err(); err != nil {
		// Nothing was fetched; let the next run handle term again.
		h.mu.Lock()
		if h.lastHandled == term {
			h.lastHandled = ""
		}
		h.mu.Unlock()
		h.logger.Info("facts request abandoned", zap.String("term", term), zap.Error(err))
		return
	}

	if err := h.pair.Result.Write(ctx, Format(capsule)); err != nil {
		h.logger.Error("write result slot failed", zap.String("term", term), zap.Error(err))
		return
	}
	h.logger.Debug("facts result written",
		zap.String("term", term),
		zap.Int("statistics", len(capsule.Statistics)),
		zap.Int("paragraphs", len(capsule.Paragraphs)),
	)
	h.announcer.Announce(ctx, relay.WorkerFacts, term)
}

// collect always returns at least the echo line; fetch and parse failures
// only shorten the capsule.
func (h *Handler) collect(ctx context.Context, term string) Capsule {
	capsule := Capsule{Locator: Locator(term)}
	target := h.ArticleURL(term)

	start := time.Now()
	doc, resp, err := h.load(ctx, h.fetcher, target)
	if err != nil {
		metrics.ObserveFetch(relay.WorkerFacts, metrics.OutcomeFailure, time.Since(start))
		h.logger.Warn("article fetch failed", zap.String("url", target), zap.Error(err))
		return capsule
	}
	capsule.Statistics = Statistics(doc)

	if len(capsule.Statistics) == 0 && h.shouldRender(resp) {
		rendered, _, rerr := h.load(ctx, h.renderer, target)
		if rerr != nil {
			h.logger.Warn("headless render failed", zap.String("url", target), zap.Error(rerr))
		} else {
			doc = rendered
			capsule.Statistics = Statistics(doc)
		}
	}
	capsule.Paragraphs = Paragraphs(doc)
	metrics.ObserveFetch(relay.WorkerFacts, metrics.OutcomeSuccess, time.Since(start))
	return capsule
}

func (h *Handler) shouldRender(resp relay.FetchResponse) bool {
	if h.renderer == nil {
		return false
	}
	return h.promoter == nil || h.promoter.ShouldPromote(resp)
}

func (h *Handler) load(ctx context.Context, f relay.Fetcher, target string) (*goquery.Document, relay.FetchResponse, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx, target); err != nil {
			return nil, relay.FetchResponse{}, err
		}
	}
	resp, err := f.Fetch(ctx, relay.FetchRequest{URL: target})
	if err != nil {
		return nil, resp, fmt.Errorf("fetch article: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, fmt.Errorf("fetch article: http %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, resp, fmt.Errorf("parse article: %w", err)
	}
	return doc, resp, nil
}
