package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

const testKey ctxKey = "target"

func TestCombineContext(t *testing.T) {
	t.Run("values come from primary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), testKey, "tab-1")
		secondary := context.WithValue(context.Background(), testKey, "ignored")

		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, "tab-1", combined.Value(testKey))
		assert.NoError(t, combined.Err())
	})

	t.Run("canceled by primary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("canceled by secondary deadline", func(t *testing.T) {
		secondary, cancelSecondary := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelSecondary()

		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled by the secondary deadline")
		}
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("explicit cancel", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestWithDefaultTimeout(t *testing.T) {
	t.Run("applies when no deadline", func(t *testing.T) {
		ctx, cancel := WithDefaultTimeout(context.Background(), time.Minute)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)
	})

	t.Run("keeps an existing deadline", func(t *testing.T) {
		parent, cancelParent := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancelParent()
		want, _ := parent.Deadline()

		ctx, cancel := WithDefaultTimeout(parent, time.Hour)
		defer cancel()
		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("zero disables", func(t *testing.T) {
		ctx, cancel := WithDefaultTimeout(context.Background(), 0)
		defer cancel()
		_, ok := ctx.Deadline()
		assert.False(t, ok)
	})
}

func TestDetach(t *testing.T) {
	parent, cancelParent := context.WithTimeout(context.WithValue(context.Background(), testKey, "tab-2"), 10*time.Millisecond)
	detached := Detach(parent)
	cancelParent()

	assert.Equal(t, "tab-2", detached.Value(testKey))
	assert.NoError(t, detached.Err())
	_, ok := detached.Deadline()
	assert.False(t, ok)
}
