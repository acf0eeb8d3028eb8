package facts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/resort-relay/internal/fetcher/colly"
	"github.com/JakeFAU/resort-relay/internal/relay"
	"github.com/JakeFAU/resort-relay/internal/slot"
	"github.com/JakeFAU/resort-relay/internal/slot/memory"
)

const vailArticle = `<html><body>
<table class="infobox">
<tr><th>Vertical</th><td>3,450 ft</td></tr>
<tr><th>Top elevation</th><td>11,570 ft</td></tr>
<tr><th>Base elevation</th><td>8,120 ft</td></tr>
<tr><th>Skiable area</th><td>5,317 acres</td></tr>
</table>
<p></p>
<p>Vail Ski Resort is a ski resort in Colorado.</p>
<p>It opened in 1962.</p>
</body></html>`

type fakeFetcher struct {
	mu    sync.Mutex
	urls  []string
	reply func(url string) (relay.FetchResponse, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, req relay.FetchRequest) (relay.FetchResponse, error) {
	f.mu.Lock()
	f.urls = append(f.urls, req.URL)
	f.mu.Unlock()
	return f.reply(req.URL)
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func htmlReply(body string) func(string) (relay.FetchResponse, error) {
	return func(url string) (relay.FetchResponse, error) {
		return relay.FetchResponse{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
	}
}

func newPair() slot.Pair {
	return slot.Pair{Mailbox: memory.NewSlot(), Result: memory.NewSlot()}
}

func readResult(t *testing.T, pair slot.Pair) string {
	t.Helper()
	v, ok, err := pair.Result.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return v
}

func TestHandleWritesCapsule(t *testing.T) {
	t.Parallel()

	pair := newPair()
	f := &fakeFetcher{reply: htmlReply(vailArticle)}
	h, err := NewHandler(pair, f, Config{BaseURL: "https://wiki.example/wiki/"}, zap.NewNop())
	require.NoError(t, err)

	h.Handle(context.Background(), "Vail Ski Resort")

	require.Equal(t, []string{"https://wiki.example/wiki/Vail_Ski_Resort"}, f.calls())
	require.Equal(t, "Vail_Ski_Resort:\n"+
		"Vertical 3,450 ft\n"+
		"Top elevation 11,570 ft\n"+
		"Base elevation 8,120 ft\n"+
		"Skiable area 5,317 acres\n"+
		"Vail Ski Resort is a ski resort in Colorado.\n"+
		"It opened in 1962.\n", readResult(t, pair))
}

func TestHandleDeduplicatesRepeatedTerm(t *testing.T) {
	t.Parallel()

	pair := newPair()
	f := &fakeFetcher{reply: htmlReply(vailArticle)}
	h, err := NewHandler(pair, f, Config{}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.Handle(context.Background(), "Vail")
	}
	h.Handle(context.Background(), " Vail\n")
	require.Len(t, f.calls(), 1)

	h.Handle(context.Background(), "Aspen")
	h.Handle(context.Background(), "Vail")
	require.Len(t, f.calls(), 3, "a term seen before but not last is fetched again")
}

func TestHandleFailureWritesEchoOnly(t *testing.T) {
	t.Parallel()

	cases := map[string]func(string) (relay.FetchResponse, error){
		"transport error": func(string) (relay.FetchResponse, error) {
			return relay.FetchResponse{}, errors.New("connection refused")
		},
		"not found": func(url string) (relay.FetchResponse, error) {
			return relay.FetchResponse{URL: url, StatusCode: http.StatusNotFound, Body: []byte("<p>No such article.</p>")}, nil
		},
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			pair := newPair()
			h, err := NewHandler(pair, &fakeFetcher{reply: reply}, Config{}, zap.NewNop())
			require.NoError(t, err)

			h.Handle(context.Background(), "Nowhere Peak")
			require.Equal(t, "Nowhere_Peak:\n", readResult(t, pair))
		})
	}
}

func TestHandleLeavesMailboxAlone(t *testing.T) {
	t.Parallel()

	pair := newPair()
	ctx := context.Background()
	require.NoError(t, pair.Mailbox.Write(ctx, "Vail"))
	h, err := NewHandler(pair, &fakeFetcher{reply: htmlReply(vailArticle)}, Config{}, zap.NewNop())
	require.NoError(t, err)

	h.Handle(ctx, "Vail")
	v, ok, err := pair.Mailbox.Read(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Vail", v)
}

func TestRendererUsedWhenStatisticsMissing(t *testing.T) {
	t.Parallel()

	pair := newPair()
	plain := &fakeFetcher{reply: htmlReply("<p>Loading infobox...</p>")}
	rendered := &fakeFetcher{reply: htmlReply(vailArticle)}
	h, err := NewHandler(pair, plain, Config{}, zap.NewNop(), WithRenderer(rendered))
	require.NoError(t, err)

	h.Handle(context.Background(), "Vail")
	require.Len(t, plain.calls(), 1)
	require.Len(t, rendered.calls(), 1)

	capsule, err := ParseCapsule(readResult(t, pair))
	require.NoError(t, err)
	require.Len(t, capsule.Statistics, 4)
}

type promoterFunc func(relay.FetchResponse) bool

func (f promoterFunc) ShouldPromote(resp relay.FetchResponse) bool { return f(resp) }

func TestPromoterCanSkipRenderer(t *testing.T) {
	t.Parallel()

	pair := newPair()
	plain := &fakeFetcher{reply: htmlReply("<p>Vail is a town in Colorado.</p>")}
	rendered := &fakeFetcher{reply: htmlReply(vailArticle)}
	var seen []int
	promoter := promoterFunc(func(resp relay.FetchResponse) bool {
		seen = append(seen, resp.StatusCode)
		return false
	})
	h, err := NewHandler(pair, plain, Config{}, zap.NewNop(), WithRenderer(rendered), WithPromoter(promoter))
	require.NoError(t, err)

	h.Handle(context.Background(), "Vail")
	require.Equal(t, []int{200}, seen)
	require.Empty(t, rendered.calls())

	capsule, err := ParseCapsule(readResult(t, pair))
	require.NoError(t, err)
	require.Empty(t, capsule.Statistics)
	require.Equal(t, []string{"Vail is a town in Colorado."}, capsule.Paragraphs)
}

type countingLimiter struct{ n atomic.Int32 }

func (l *countingLimiter) Wait(context.Context, string) error {
	l.n.Add(1)
	return nil
}

func TestWorkerScrapesThroughColly(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/wiki/Arapahoe_Basin" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<table><tr><th>Vertical</th><td>2,530 ft</td></tr></table><p>Arapahoe Basin is a ski area.</p>`)
	}))
	defer srv.Close()

	pair := newPair()
	limiter := &countingLimiter{}
	h, err := NewHandler(pair, collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}),
		Config{BaseURL: srv.URL + "/wiki"}, zap.NewNop(), WithLimiter(limiter))
	require.NoError(t, err)
	w, err := NewWorker(h, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.NoError(t, pair.Mailbox.Write(ctx, "Arapahoe Basin"))
	got, err := slot.Await(ctx, pair.Result, 10*time.Millisecond, func(v string, ok bool) bool {
		return ok && FirstLine(v) == EchoLine("Arapahoe Basin")
	})
	require.NoError(t, err)
	require.Equal(t, "Arapahoe_Basin:\nVertical 2,530 ft\nArapahoe Basin is a ski area.\n", got)

	// Several more polls see the same mailbox value without fetching again.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, int32(1), limiter.n.Load())

	cancel()
	<-done
}

type contextLimiter struct{}

func (contextLimiter) Wait(ctx context.Context, _ string) error { return ctx.Err() }

func TestHandleCanceledWritesNothing(t *testing.T) {
	t.Parallel()

	pair := newPair()
	f := &fakeFetcher{reply: htmlReply(vailArticle)}
	h, err := NewHandler(pair, f, Config{}, zap.NewNop(), WithLimiter(contextLimiter{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Handle(ctx, "Vail")

	_, ok, err := pair.Result.Read(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, f.calls())

	h.Handle(context.Background(), "Vail")
	require.Len(t, f.calls(), 1)
	require.Equal(t, "Vail:", FirstLine(readResult(t, pair)))
}
