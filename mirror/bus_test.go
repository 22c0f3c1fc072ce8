package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuki-matsu783/electron-bolt/vfs"
)

func TestBus_PublishFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	bus.Publish(Change{Kind: vfs.EventAddFile, Path: "x.txt"})

	for _, ch := range []chan Change{a, b} {
		select {
		case change := <-ch:
			assert.Equal(t, "x.txt", change.Path)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the change")
		}
	}
}

func TestBus_SlowSubscriberDropped(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	// Flood well past the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Change{Kind: vfs.EventChangeFile, Path: "f"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(Change{Kind: vfs.EventAddFile, Path: "y"})
}
