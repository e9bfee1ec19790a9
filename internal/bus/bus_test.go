package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewInMemory(4)
	msgs, err := b.Consume(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, Message{Type: "session_started", Body: json.RawMessage(`{"class_id":"C1"}`)}))
	require.NoError(t, b.Publish(ctx, Message{Type: "attendance_marked", Group: "C1", Body: json.RawMessage(`{}`)}))

	first := <-msgs
	require.Equal(t, "session_started", first.Type)
	require.JSONEq(t, `{"class_id":"C1"}`, string(first.Body))

	second := <-msgs
	require.Equal(t, "attendance_marked", second.Type)
	require.Equal(t, "C1", second.Group)
}

func TestInMemoryPublishDoesNotBlockWhenFull(t *testing.T) {
	b := NewInMemory(1)
	require.NoError(t, b.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	start := time.Now()
	err := b.Publish(ctx, Message{Type: "b"})
	require.ErrorIs(t, err, ErrFull)
	require.Less(t, time.Since(start), time.Second)
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	b := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Publish(ctx, Message{Type: "a"}), context.Canceled)
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-msgs:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
