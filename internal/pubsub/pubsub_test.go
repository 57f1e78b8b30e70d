package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker[string]()
	defer b.Close()

	ctx := context.Background()
	s1 := b.Subscribe(ctx)
	s2 := b.Subscribe(ctx)

	b.Publish(SectionsPublished, "hello")

	for _, sub := range []<-chan Event[string]{s1, s2} {
		select {
		case ev := <-sub:
			require.Equal(t, SectionsPublished, ev.Type)
			require.Equal(t, "hello", ev.Payload)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	b := NewBroker[int]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBroker[int]()
	defer b.Close()

	_ = b.Subscribe(context.Background()) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*2; i++ {
			b.Publish(AggregatesUpdated, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestCloseIsIdempotentAndClosesSubs(t *testing.T) {
	b := NewBroker[int]()
	sub := b.Subscribe(context.Background())

	b.Close()
	b.Close()

	_, ok := <-sub
	require.False(t, ok)

	// subscribing after close yields a closed channel
	late := b.Subscribe(context.Background())
	_, ok = <-late
	require.False(t, ok)
}
