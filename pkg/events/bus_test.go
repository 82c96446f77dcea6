package events

import "testing"

func TestPublishFansOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, cancelA := bus.Subscribe(4)
	defer cancelA()
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	bus.Publish(OrderSubmitted{OrderID: 7})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case e := <-ch:
			got, ok := e.(OrderSubmitted)
			if !ok || got.OrderID != 7 {
				t.Errorf("subscriber %s: event = %#v", name, e)
			}
		default:
			t.Errorf("subscriber %s: no event", name)
		}
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(OrderSubmitted{OrderID: 1})
	bus.Publish(OrderSubmitted{OrderID: 2}) // buffer full, dropped

	e := <-ch
	if e.(OrderSubmitted).OrderID != 1 {
		t.Errorf("event = %#v, want order 1", e)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected second event %#v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	bus.Publish(OrderSubmitted{OrderID: 1}) // must not panic on closed channel
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe(1)
	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after close")
	}

	// subscriptions after close come back already closed
	late, cancel := bus.Subscribe(1)
	defer cancel()
	if _, ok := <-late; ok {
		t.Fatal("post-close subscription not closed")
	}
}
