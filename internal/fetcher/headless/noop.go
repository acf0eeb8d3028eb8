package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/resort-relay/internal/relay"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless rendering is disabled")

// Noop stands in when headless rendering is switched off.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(_ context.Context, _ relay.FetchRequest) (relay.FetchResponse, error) {
	return relay.FetchResponse{}, ErrDisabled
}
