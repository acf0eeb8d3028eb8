// Package slottest holds the behaviour every slot backend must share.
package slottest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resort-relay/internal/slot"
)

// Run exercises the slot contract against slots produced by open. Each
// subtest receives a fresh, empty slot.
func Run(t *testing.T, open func(t *testing.T) slot.Slot) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyReadIsNotAnError", func(t *testing.T) {
		s := open(t)
		value, ok, err := s.Read(ctx)
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, value)
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Write(ctx, "Vail"))
		require.NoError(t, s.Write(ctx, "Aspen"))
		value, ok, err := s.Read(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "Aspen", value)
	})

	t.Run("ReadDoesNotConsume", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Write(ctx, "Arapahoe Basin"))
		for i := 0; i < 3; i++ {
			value, ok, err := s.Read(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "Arapahoe Basin", value)
		}
	})

	t.Run("ClearEmptiesSlot", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Write(ctx, "Vail,US,42.5,Clear,30,"))
		require.NoError(t, s.Clear(ctx))
		_, ok, err := s.Read(ctx)
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, s.Clear(ctx))
	})

	t.Run("MultilineValuesSurvive", func(t *testing.T) {
		s := open(t)
		payload := "Vail:\nVertical 3,450 ft\nVail is a ski resort.\n"
		require.NoError(t, s.Write(ctx, payload))
		value, ok, err := s.Read(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, payload, value)
	})
}
