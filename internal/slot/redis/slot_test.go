package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resort-relay/internal/slot"
	slotredis "github.com/JakeFAU/resort-relay/internal/slot/redis"
	"github.com/JakeFAU/resort-relay/internal/slot/slottest"
)

// fakeClient is an in-memory stand-in for the go-redis client.
type fakeClient struct {
	mu   sync.Mutex
	data map[string]string
	fail error
	keys []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: make(map[string]string)}
}

func (f *fakeClient) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.fail != nil {
		return goredis.NewStringResult("", f.fail)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.fail != nil {
		return goredis.NewStatusResult("", f.fail)
	}
	f.data[key] = value.(string)
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return goredis.NewIntResult(0, f.fail)
	}
	var n int64
	for _, k := range keys {
		f.keys = append(f.keys, k)
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func TestSlotContract(t *testing.T) {
	slottest.Run(t, func(t *testing.T) slot.Slot {
		store, err := slotredis.New(newFakeClient(), "relay:")
		require.NoError(t, err)
		s, err := store.Open(slot.FactsRequest)
		require.NoError(t, err)
		return s
	})
}

func TestKeysArePrefixed(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	store, err := slotredis.New(fc, "relay:")
	require.NoError(t, err)
	s, err := store.Open(slot.WeatherResponse)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), "Vail,US,42.5,Clear,30,"))
	assert.Equal(t, "Vail,US,42.5,Clear,30,", fc.data["relay:weather_response"])
	assert.Equal(t, "relay:weather_response", s.(*slotredis.Slot).Key())
}

func TestBackendErrorsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	fc := newFakeClient()
	fc.fail = boom
	store, err := slotredis.New(fc, "")
	require.NoError(t, err)
	s, err := store.Open(slot.FactsResponse)
	require.NoError(t, err)

	_, _, err = s.Read(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, s.Write(context.Background(), "x"), boom)
	require.ErrorIs(t, s.Clear(context.Background()), boom)
}

func TestNewClientRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := slotredis.NewClient(context.Background(), slotredis.Config{})
	require.Error(t, err)
}
