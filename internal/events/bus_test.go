package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBus(t *testing.T) {
	t.Run("delivers to subscribers of the topic only", func(t *testing.T) {
		bus := newTestBus()
		defer bus.Close()

		a, cancelA := bus.Subscribe("task-a", 4)
		defer cancelA()
		b, cancelB := bus.Subscribe("task-b", 4)
		defer cancelB()

		bus.Publish(TaskUpdated{TaskID: "task-a", Status: "processing", At: time.Now()})

		select {
		case ev := <-a:
			assert.Equal(t, "task-a", ev.TaskID)
			assert.Equal(t, "processing", ev.Status)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}

		select {
		case ev := <-b:
			t.Fatalf("unexpected event on other topic: %+v", ev)
		default:
		}
	})

	t.Run("multiple subscribers on one topic", func(t *testing.T) {
		bus := newTestBus()
		defer bus.Close()

		first, cancelFirst := bus.Subscribe("task", 1)
		defer cancelFirst()
		second, cancelSecond := bus.Subscribe("task", 1)
		defer cancelSecond()
		assert.Equal(t, 2, bus.Subscribers("task"))

		bus.Publish(TaskUpdated{TaskID: "task"})

		for i, ch := range []<-chan TaskUpdated{first, second} {
			select {
			case <-ch:
			case <-time.After(100 * time.Millisecond):
				t.Fatalf("subscriber %d: timeout waiting for event", i+1)
			}
		}
	})

	t.Run("publish never blocks on a full buffer", func(t *testing.T) {
		bus := newTestBus()
		defer bus.Close()

		_, cancel := bus.Subscribe("task", 1)
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				bus.Publish(TaskUpdated{TaskID: "task"})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			t.Fatal("publisher blocked")
		}
	})

	t.Run("cancel closes the channel and drops the topic", func(t *testing.T) {
		bus := newTestBus()
		defer bus.Close()

		ch, cancel := bus.Subscribe("task", 1)
		cancel()
		cancel()

		_, ok := <-ch
		assert.False(t, ok)
		assert.Equal(t, 0, bus.Subscribers("task"))

		require.NotPanics(t, func() { bus.Publish(TaskUpdated{TaskID: "task"}) })
	})

	t.Run("close ends every subscription", func(t *testing.T) {
		bus := newTestBus()
		ch, cancel := bus.Subscribe("task", 1)

		bus.Close()
		bus.Close()

		_, ok := <-ch
		assert.False(t, ok)
		require.NotPanics(t, cancel)
		require.NotPanics(t, func() { bus.Publish(TaskUpdated{TaskID: "task"}) })

		late, _ := bus.Subscribe("task", 1)
		_, ok = <-late
		assert.False(t, ok, "subscribing after close yields a closed channel")
	})
}
