package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier(4)
	a, cancelA := n.Subscribe()
	b, cancelB := n.Subscribe()
	defer cancelA()
	defer cancelB()
	require.Equal(t, 2, n.Count())

	n.Publish(Event{Type: EventRateLimitCleared})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		assert.Equal(t, EventRateLimitCleared, e.Type)
		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestNotifierDropsForSlowSubscriber(t *testing.T) {
	n := NewNotifier(1)
	ch, cancel := n.Subscribe()
	defer cancel()

	n.Publish(Event{Type: EventEntityUpdated, Key: "first"})
	n.Publish(Event{Type: EventEntityUpdated, Key: "second"})

	require.Equal(t, uint64(1), n.Dropped())
	e := <-ch
	require.Equal(t, "first", e.Key)
}

func TestNotifierCancel(t *testing.T) {
	n := NewNotifier(0)
	ch, cancel := n.Subscribe()
	cancel()
	cancel()

	require.Equal(t, 0, n.Count())
	_, open := <-ch
	require.False(t, open)

	n.Publish(Event{Type: EventRateLimitCleared})
	require.Equal(t, uint64(0), n.Dropped())
}
