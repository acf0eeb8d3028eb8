// Package caller hands requests to the workers through their mailboxes and
// waits, up to a deadline, for the matching result.
package caller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/facts"
	"github.com/JakeFAU/resort-relay/internal/metrics"
	"github.com/JakeFAU/resort-relay/internal/relay"
	"github.com/JakeFAU/resort-relay/internal/slot"
	"github.com/JakeFAU/resort-relay/internal/weather"
)

var (
	// ErrUnavailable means no fresh result appeared before the deadline.
	ErrUnavailable = errors.New("result unavailable")
	// ErrMalformed means the result slot held content that does not parse.
	ErrMalformed = errors.New("malformed result")
)

// Defaults for Config.
const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

// Config bounds every hand-off.
type Config struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// Caller performs hand-offs against one weather pair and one facts pair.
// Hand-offs on the same pair are serialized within the process.
type Caller struct {
	weather slot.Pair
	facts   slot.Pair
	cfg     Config
	logger  *zap.Logger

	weatherMu sync.Mutex
	factsMu   sync.Mutex
}

// New builds a Caller.
func New(weatherPair, factsPair slot.Pair, cfg Config, logger *zap.Logger) (*Caller, error) {
	for name, p := range map[string]slot.Pair{relay.WorkerWeather: weatherPair, relay.WorkerFacts: factsPair} {
		if p.Mailbox == nil || p.Result == nil {
			return nil, fmt.Errorf("%s slot pair is incomplete", name)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{weather: weatherPair, facts: factsPair, cfg: cfg, logger: logger}, nil
}

// Weather asks the weather worker about place. The result slot is cleared
// first so that any value seen afterwards was written for this request.
func (c *Caller) Weather(ctx context.Context, place string) (weather.Report, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return weather.Report{}, fmt.Errorf("place is required")
	}
	c.weatherMu.Lock()
	defer c.weatherMu.Unlock()

	start := time.Now()
	line, err := c.handoff(ctx, c.weather, place, true, func(_ string, ok bool) bool { return ok })
	if err != nil {
		c.observe(relay.WorkerWeather, err, start)
		return weather.Report{}, err
	}
	report, err := weather.ParseLine(line)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformed, err)
		c.observe(relay.WorkerWeather, err, start)
		return weather.Report{}, err
	}
	c.observe(relay.WorkerWeather, nil, start)
	return report, nil
}

// Facts asks the facts worker about term. The result is accepted once its
// first line echoes the term; a repeated term is satisfied immediately by
// the result already in the slot.
func (c *Caller) Facts(ctx context.Context, term string) (facts.Capsule, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return facts.Capsule{}, fmt.Errorf("term is required")
	}
	c.factsMu.Lock()
	defer c.factsMu.Unlock()

	echo := facts.EchoLine(term)
	start := time.Now()
	content, err := c.handoff(ctx, c.facts, term, false, func(v string, ok bool) bool {
		return ok && strings.TrimRight(facts.FirstLine(v), "\r") == echo
	})
	if err != nil {
		c.observe(relay.WorkerFacts, err, start)
		return facts.Capsule{}, err
	}
	capsule, err := facts.ParseCapsule(content)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformed, err)
		c.observe(relay.WorkerFacts, err, start)
		return facts.Capsule{}, err
	}
	c.observe(relay.WorkerFacts, nil, start)
	return capsule, nil
}

// handoff writes request to the mailbox and waits for ready. clearFirst
// empties the result slot beforehand; the facts slot must keep its content
// because its worker skips repeated requests.
func (c *Caller) handoff(
	ctx context.Context,
	pair slot.Pair,
	request string,
	clearFirst bool,
	ready func(value string, ok bool) bool,
) (string, error) {
	if clearFirst {
		if err := pair.Result.Clear(ctx); err != nil {
			return "", fmt.Errorf("clear result slot: %w", err)
		}
	}
	if err := pair.Mailbox.Write(ctx, request); err != nil {
		return "", fmt.Errorf("write mailbox: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	value, err := slot.Await(waitCtx, pair.Result, c.cfg.PollInterval, ready)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("await result: %w", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrUnavailable, c.cfg.Timeout)
		}
		return "", fmt.Errorf("await result: %w", err)
	}
	return value, nil
}

func (c *Caller) observe(worker string, err error, start time.Time) {
	wait := time.Since(start)
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrUnavailable):
		outcome = metrics.OutcomeUnavailable
	case errors.Is(err, ErrMalformed):
		outcome = metrics.OutcomeMalformed
	default:
		outcome = metrics.OutcomeFailure
	}
	metrics.ObserveHandoff(worker, outcome, wait)
	if err != nil {
		c.logger.Warn("hand-off failed", zap.String("worker", worker), zap.Duration("wait", wait), zap.Error(err))
	}
}
