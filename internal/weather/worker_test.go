package weather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	publishermemory "github.com/JakeFAU/resort-relay/internal/publisher/memory"
	"github.com/JakeFAU/resort-relay/internal/relay"
	"github.com/JakeFAU/resort-relay/internal/slot"
	"github.com/JakeFAU/resort-relay/internal/slot/memory"
	"github.com/JakeFAU/resort-relay/internal/worker"
)

type fakeSource struct {
	mu     sync.Mutex
	places []string
	report func(place string) (Report, error)
}

func (f *fakeSource) Current(_ context.Context, place string) (Report, error) {
	f.mu.Lock()
	f.places = append(f.places, place)
	f.mu.Unlock()
	return f.report(place)
}

func (f *fakeSource) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.places...)
}

func newPair() slot.Pair {
	return slot.Pair{Mailbox: memory.NewSlot(), Result: memory.NewSlot()}
}

func readSlot(t *testing.T, s slot.Slot) (string, bool) {
	t.Helper()
	v, ok, err := s.Read(context.Background())
	require.NoError(t, err)
	return v, ok
}

func TestHandleWritesNormalizedLine(t *testing.T) {
	t.Parallel()

	pair := newPair()
	ctx := context.Background()
	require.NoError(t, pair.Mailbox.Write(ctx, "Vail\n"))

	src := &fakeSource{report: func(string) (Report, error) {
		return Report{City: "Vail", Country: "US", Temperature: 42.5, Condition: "Clear", Humidity: 30}, nil
	}}
	pub := publishermemory.New(10)
	ann := worker.NewAnnouncer(pub, "relay-results", nil, zap.NewNop())
	h := NewHandler(pair, src, ann, zap.NewNop())

	h.Handle(ctx, "Vail\n")

	line, ok := readSlot(t, pair.Result)
	require.True(t, ok)
	require.Equal(t, "Vail,US,42.5,Clear,30,", line)
	_, ok = readSlot(t, pair.Mailbox)
	require.False(t, ok, "mailbox is cleared on claim")
	require.Equal(t, []string{"Vail"}, src.calls())

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	event, isEvent := msgs[0].Payload.(relay.ResultEvent)
	require.True(t, isEvent)
	require.Equal(t, relay.WorkerWeather, event.Worker)
	require.Equal(t, "Vail", event.Request)
}

func TestHandleFailureLeavesResultUntouched(t *testing.T) {
	t.Parallel()

	pair := newPair()
	ctx := context.Background()
	require.NoError(t, pair.Result.Write(ctx, "Aspen,US,20,Snow,80,"))
	require.NoError(t, pair.Mailbox.Write(ctx, "Atlantis"))

	src := &fakeSource{report: func(string) (Report, error) {
		return Report{}, ErrUpstreamStatus
	}}
	NewHandler(pair, src, nil, zap.NewNop()).Handle(ctx, "Atlantis")

	line, ok := readSlot(t, pair.Result)
	require.True(t, ok)
	require.Equal(t, "Aspen,US,20,Snow,80,", line)
	_, ok = readSlot(t, pair.Mailbox)
	require.False(t, ok, "failed requests are not retried")
}

func TestWorkerSurvivesPanicAndServesNextRequest(t *testing.T) {
	t.Parallel()

	pair := newPair()
	src := &fakeSource{report: func(place string) (Report, error) {
		if place == "Boom" {
			panic("decoder exploded")
		}
		return Report{City: place, Country: "US", Temperature: 30, Condition: "Snow", Humidity: 90}, nil
	}}
	w, err := NewWorker(pair, src, nil, time.Hour, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.NoError(t, pair.Mailbox.Write(ctx, "Boom"))
	require.Eventually(t, func() bool {
		return len(src.calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pair.Mailbox.Write(ctx, "Breckenridge"))
	value, err := slot.Await(ctx, pair.Result, 10*time.Millisecond, func(_ string, ok bool) bool { return ok })
	require.NoError(t, err)
	require.Equal(t, "Breckenridge,US,30,Snow,90,", value)

	cancel()
	<-done
}

func TestHandleIgnoresBlankRequest(t *testing.T) {
	t.Parallel()

	pair := newPair()
	src := &fakeSource{report: func(string) (Report, error) { return Report{}, errors.New("unexpected call") }}
	require.NoError(t, pair.Mailbox.Write(context.Background(), "  \n"))
	NewHandler(pair, src, nil, nil).Handle(context.Background(), "  \n")
	require.Empty(t, src.calls())
	_, ok := readSlot(t, pair.Mailbox)
	require.False(t, ok)
}
