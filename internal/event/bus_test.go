package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(SyncStarted{Meta: NewMeta("/proj")})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, "/proj", ev.Project())
		assert.False(t, ev.Time().IsZero())
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		// Nobody reads; every publish past the buffer is dropped.
		for i := 0; i < 10; i++ {
			bus.Publish(SyncStarted{Meta: NewMeta("/proj")})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, int64(9), bus.Dropped())
}

func TestBus_SlowSubscriberDoesNotStallOthers(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	slow, cancelSlow := bus.Subscribe()
	defer cancelSlow()
	fast, cancelFast := bus.Subscribe()

	bus.Publish(SyncStarted{Meta: NewMeta("/proj")})
	bus.Publish(SyncStopped{Meta: NewMeta("/proj")})

	// The fast subscriber drains as it goes and still sees later events.
	ev := <-fast
	_, ok := ev.(SyncStarted)
	require.True(t, ok)

	cancelFast()

	bus.Publish(SyncStarted{Meta: NewMeta("/proj")})

	// The slow subscriber kept only what fit its buffer.
	ev = <-slow
	_, ok = ev.(SyncStarted)
	assert.True(t, ok)
	assert.Positive(t, bus.Dropped())
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Cancel is idempotent and later publishes do not panic.
	cancel()
	bus.Publish(SyncStarted{Meta: NewMeta("/proj")})
}

func TestBus_CloseEndsAllSubscriptions(t *testing.T) {
	bus := NewBus(4)

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publish and Subscribe after close are safe no-ops.
	bus.Publish(SyncStarted{Meta: NewMeta("/proj")})

	late, lateCancel := bus.Subscribe()
	defer lateCancel()

	_, open = <-late
	assert.False(t, open)
}
