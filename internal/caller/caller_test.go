package caller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/facts"
	"github.com/JakeFAU/resort-relay/internal/relay"
	"github.com/JakeFAU/resort-relay/internal/slot"
	"github.com/JakeFAU/resort-relay/internal/slot/memory"
	"github.com/JakeFAU/resort-relay/internal/weather"
)

type fixture struct {
	weather slot.Pair
	facts   slot.Pair
	caller  *Caller
}

func newFixture(t *testing.T, timeout time.Duration) fixture {
	t.Helper()
	store := memory.NewStore()
	wp, err := slot.OpenPair(store, slot.WeatherRequest, slot.WeatherResponse)
	require.NoError(t, err)
	fp, err := slot.OpenPair(store, slot.FactsRequest, slot.FactsResponse)
	require.NoError(t, err)
	c, err := New(wp, fp, Config{Timeout: timeout, PollInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	return fixture{weather: wp, facts: fp, caller: c}
}

// runWeather starts a weather worker backed by a fixed table of places.
func runWeather(t *testing.T, ctx context.Context, pair slot.Pair, known map[string]weather.Report) {
	t.Helper()
	src := sourceFunc(func(_ context.Context, place string) (weather.Report, error) {
		r, ok := known[place]
		if !ok {
			return weather.Report{}, weather.ErrUpstreamStatus
		}
		return r, nil
	})
	w, err := weather.NewWorker(pair, src, nil, time.Hour, zap.NewNop())
	require.NoError(t, err)
	go w.Run(ctx)
}

type sourceFunc func(ctx context.Context, place string) (weather.Report, error)

func (f sourceFunc) Current(ctx context.Context, place string) (weather.Report, error) {
	return f(ctx, place)
}

type articleFetcher struct {
	calls atomic.Int32
	pages map[string]string
}

func (f *articleFetcher) Fetch(_ context.Context, req relay.FetchRequest) (relay.FetchResponse, error) {
	f.calls.Add(1)
	for suffix, body := range f.pages {
		if strings.HasSuffix(req.URL, "/"+suffix) {
			return relay.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
		}
	}
	return relay.FetchResponse{URL: req.URL, StatusCode: 404}, nil
}

func runFacts(t *testing.T, ctx context.Context, pair slot.Pair, f relay.Fetcher) {
	t.Helper()
	h, err := facts.NewHandler(pair, f, facts.Config{BaseURL: "https://wiki.example/wiki"}, zap.NewNop())
	require.NoError(t, err)
	w, err := facts.NewWorker(h, time.Hour)
	require.NoError(t, err)
	go w.Run(ctx)
}

func TestWeatherEndToEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx := newFixture(t, 2*time.Second)
	runWeather(t, ctx, fx.weather, map[string]weather.Report{
		"Vail": {City: "Vail", Country: "US", Temperature: 42.5, Condition: "Clear", Humidity: 30},
	})

	got, err := fx.caller.Weather(ctx, "Vail")
	require.NoError(t, err)
	require.Equal(t, weather.Report{City: "Vail", Country: "US", Temperature: 42.5, Condition: "Clear", Humidity: 30}, got)

	line, ok, err := fx.weather.Result.Read(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Vail,US,42.5,Clear,30,", line)
}

func TestWeatherUnknownCityIsUnavailable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx := newFixture(t, 200*time.Millisecond)
	require.NoError(t, fx.weather.Result.Write(ctx, "Aspen,US,20,Snow,80,"))
	runWeather(t, ctx, fx.weather, nil)

	_, err := fx.caller.Weather(ctx, "Atlantis")
	require.ErrorIs(t, err, ErrUnavailable)

	// The stale answer was cleared by the caller and never rewritten.
	_, ok, err := fx.weather.Result.Read(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWeatherMalformedResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx := newFixture(t, time.Second)

	// A rogue writer answers with garbage as soon as the request lands.
	go func() {
		_, _ = slot.Await(ctx, fx.weather.Mailbox, 5*time.Millisecond, func(_ string, ok bool) bool { return ok })
		_ = fx.weather.Result.Write(ctx, "not a weather line")
	}()

	_, err := fx.caller.Weather(ctx, "Vail")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFactsEndToEndAndRepeat(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx := newFixture(t, 2*time.Second)
	fetcher := &articleFetcher{pages: map[string]string{
		"Vail_Ski_Resort": `<table><tr><th>Skiable area</th><td>5,317 acres</td></tr></table><p>Vail is big.</p>`,
	}}
	runFacts(t, ctx, fx.facts, fetcher)

	got, err := fx.caller.Facts(ctx, "Vail Ski Resort")
	require.NoError(t, err)
	require.Equal(t, facts.Capsule{
		Locator:    "Vail_Ski_Resort",
		Statistics: []string{"Skiable area 5,317 acres"},
		Paragraphs: []string{"Vail is big."},
	}, got)

	again, err := fx.caller.Facts(ctx, "Vail Ski Resort")
	require.NoError(t, err)
	require.Equal(t, got, again)
	require.Equal(t, int32(1), fetcher.calls.Load(), "repeat served from the result slot")
}

func TestFactsMissingArticleIsEchoOnly(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx := newFixture(t, 2*time.Second)
	runFacts(t, ctx, fx.facts, &articleFetcher{})

	got, err := fx.caller.Facts(ctx, "Nowhere Peak")
	require.NoError(t, err)
	require.Equal(t, "Nowhere_Peak", got.Locator)
	require.Empty(t, got.Statistics)
	require.Empty(t, got.Paragraphs)
}

func TestFactsWithoutWorkerIsUnavailable(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 100*time.Millisecond)
	require.NoError(t, fx.facts.Result.Write(context.Background(), "Aspen:\nAspen is nice.\n"))

	_, err := fx.caller.Facts(context.Background(), "Vail")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLookupReportsPartsIndependently(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx := newFixture(t, 300*time.Millisecond)
	runFacts(t, ctx, fx.facts, &articleFetcher{pages: map[string]string{
		"Arapahoe_Basin": `<p>Arapahoe Basin is a ski area.</p>`,
	}})
	// No weather worker: that half must time out on its own.

	report, err := fx.caller.Lookup(ctx, "Get Info")
	require.NoError(t, err)
	require.Equal(t, Query{Resort: "Arapahoe Basin", Location: "Silverthorne", Search: "Arapahoe Basin"}, report.Query)
	require.False(t, report.Weather.Available)
	require.Contains(t, report.Weather.Error, ErrUnavailable.Error())
	require.True(t, report.Facts.Available)
	require.Equal(t, []string{"Arapahoe Basin is a ski area."}, report.Facts.Capsule.Paragraphs)
}

func TestConcurrentWeatherCallsAreSerialized(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx := newFixture(t, 2*time.Second)
	known := map[string]weather.Report{}
	for _, p := range []string{"Vail", "Aspen", "Telluride", "Winter Park"} {
		known[p] = weather.Report{City: p, Country: "US", Temperature: 10, Condition: "Snow", Humidity: 50}
	}
	runWeather(t, ctx, fx.weather, known)

	var wg sync.WaitGroup
	errs := make(chan error, len(known))
	for place := range known {
		wg.Add(1)
		go func(place string) {
			defer wg.Done()
			got, err := fx.caller.Weather(ctx, place)
			if err == nil && got.City != place {
				err = errors.New("got " + got.City + " for " + place)
			}
			errs <- err
		}(place)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestParseQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Query
	}{
		{"", Query{"Arapahoe Basin", "Silverthorne", "Arapahoe Basin"}},
		{"Get Info", Query{"Arapahoe Basin", "Silverthorne", "Arapahoe Basin"}},
		{"Vail, Vail, Vail Ski Resort", Query{"Vail", "Vail", "Vail Ski Resort"}},
		{"Loveland", Query{"Loveland", "Loveland", "Loveland"}},
		{"Copper Mountain,Frisco", Query{"Copper Mountain", "Frisco", "Copper Mountain"}},
		{"A,B,C,D", Query{"A", "B", "C,D"}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParseQuery(tc.in), "query %q", tc.in)
	}
}

func TestNewRejectsIncompletePairs(t *testing.T) {
	t.Parallel()

	_, err := New(slot.Pair{}, slot.Pair{}, Config{}, nil)
	require.Error(t, err)
}
