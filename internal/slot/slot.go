// Package slot defines the single-value storage slots that carry a request from
// a caller to a worker (the mailbox) and a normalized response back (the result
// slot).
//
// A slot holds at most one value. Write replaces the whole content, Read peeks
// without consuming and Clear empties it. There are no sequence numbers and no
// acknowledgments: the last write wins and earlier values are lost.
package slot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Well-known slot names, one mailbox and one result slot per worker kind.
const (
	WeatherRequest  = "weather_request"
	WeatherResponse = "weather_response"
	FactsRequest    = "facts_request"
	FactsResponse   = "facts_response"
)

// Slot is a single-value, overwrite-on-write storage cell.
type Slot interface {
	// Write replaces the slot content with value.
	Write(ctx context.Context, value string) error
	// Read returns the current content. ok is false when the slot is empty;
	// an empty slot is never an error.
	Read(ctx context.Context) (value string, ok bool, err error)
	// Clear empties the slot. Clearing an empty slot is a no-op.
	Clear(ctx context.Context) error
}

// Notifier is implemented by slots that can signal changes. The returned
// channel is closed after the next Write or Clear, so callers must fetch a
// fresh channel before every wait.
type Notifier interface {
	Changed() <-chan struct{}
}

// Opener hands out named slots from one backend.
type Opener interface {
	Open(name string) (Slot, error)
}

// Pair groups the mailbox and result slot used by one worker kind.
type Pair struct {
	Mailbox Slot
	Result  Slot
}

// OpenPair opens the mailbox and result slot named by mailbox and result.
func OpenPair(o Opener, mailbox, result string) (Pair, error) {
	mb, err := o.Open(mailbox)
	if err != nil {
		return Pair{}, fmt.Errorf("open mailbox %s: %w", mailbox, err)
	}
	rs, err := o.Open(result)
	if err != nil {
		return Pair{}, fmt.Errorf("open result slot %s: %w", result, err)
	}
	return Pair{Mailbox: mb, Result: rs}, nil
}

// ValidateName rejects slot names that cannot be mapped onto a file, key or
// object name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("slot name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid slot name %q", name)
	}
	return nil
}

// Changes returns the change channel of s, or nil when s cannot notify. A nil
// channel never fires, which leaves the caller on its poll interval.
func Changes(s Slot) <-chan struct{} {
	if n, ok := s.(Notifier); ok {
		return n.Changed()
	}
	return nil
}

// Pause blocks for interval, until changed fires, or until ctx ends. It
// reports false only when ctx ended.
func Pause(ctx context.Context, interval time.Duration, changed <-chan struct{}) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-changed:
		return true
	}
}

// Await re-reads s until ready accepts its content or ctx ends.
func Await(
	ctx context.Context,
	s Slot,
	interval time.Duration,
	ready func(value string, ok bool) bool,
) (string, error) {
	for {
		changed := Changes(s)
		value, ok, err := s.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("read slot: %w", err)
		}
		if ready(value, ok) {
			return value, nil
		}
		if !Pause(ctx, interval, changed) {
			return "", fmt.Errorf("await slot: %w", ctx.Err())
		}
	}
}
