package events

import (
	"fmt"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub2()

	bus.Publish(Event{Kind: SessionUpdated, SessionID: "s1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			if event.Kind != SessionUpdated || event.SessionID != "s1" {
				t.Errorf("subscriber %d got %+v", i, event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	// Neither publish may block, even though only one fits.
	bus.Publish(Event{Kind: SessionUpdated, SessionID: "first"})
	bus.Publish(Event{Kind: SessionUpdated, SessionID: "second"})

	event := <-ch
	if event.SessionID != "first" {
		t.Errorf("got %q, want first", event.SessionID)
	}
	select {
	case extra := <-ch:
		t.Errorf("second event %+v should have been dropped", extra)
	default:
	}
}

func TestUnboundedSubscriberMissesNothing(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.SubscribeUnbounded()
	defer unsubscribe()

	// A burst far beyond any buffer, published before anything is read.
	const n = 500
	for i := 0; i < n; i++ {
		bus.Publish(Event{Kind: SessionUpdated, SessionID: fmt.Sprintf("s%d", i)})
	}

	for i := 0; i < n; i++ {
		select {
		case event := <-ch:
			if event.SessionID != fmt.Sprintf("s%d", i) {
				t.Fatalf("event %d = %q, want s%d in order with none dropped", i, event.SessionID, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d events arrived", i, n)
		}
	}
}

func TestUnboundedUnsubscribeFlushesQueuedEvents(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.SubscribeUnbounded()

	bus.Publish(Event{Kind: SessionUpdated, SessionID: "a"})
	bus.Publish(Event{Kind: SessionUpdated, SessionID: "b"})
	unsubscribe()

	var got []string
	for event := range ch {
		got = append(got, event.SessionID)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("flushed events = %v, want [a b]", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	unsubscribe()

	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	bus.Publish(Event{Kind: SessionUpdated})
	// Unsubscribing twice is safe.
	unsubscribe()
}

func TestCloseShutsDownBus(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe(1)
	bus.Close()

	if _, open := <-ch; open {
		t.Error("channel should be closed after bus Close")
	}
	bus.Publish(Event{Kind: SessionUpdated})

	late, _ := bus.Subscribe(1)
	if _, open := <-late; open {
		t.Error("subscribing to a closed bus should yield a closed channel")
	}
}
