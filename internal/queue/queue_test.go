package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(2)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeReprojectSession, ID: "s1"}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, Message{Type: TypeReprojectSession, ID: "s1"}, receive(t, ch))
}

func TestInMemoryPublishDoesNotBlockWhenFull(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, Message{ID: "a"}))
	assert.ErrorIs(t, q.Publish(ctx, Message{ID: "b"}), ErrFull)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "test:queue")
	require.NoError(t, q.Publish(ctx, Message{Type: TypeReprojectSubstitution, ID: "r1", Attempt: 2}))
	require.NoError(t, q.Publish(ctx, Message{Type: TypeReprojectSession, ID: "s2"}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	// LPUSH + BRPOP is first in, first out.
	assert.Equal(t, Message{Type: TypeReprojectSubstitution, ID: "r1", Attempt: 2}, receive(t, ch))
	assert.Equal(t, Message{Type: TypeReprojectSession, ID: "s2"}, receive(t, ch))
}
