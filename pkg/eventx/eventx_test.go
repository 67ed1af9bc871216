package eventx

import (
	"sync/atomic"
	"testing"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := New()

	var order []int
	bus.Subscribe("test:event", func(e Event) { order = append(order, 1) })
	bus.Subscribe("test:event", func(e Event) { order = append(order, 2) })
	bus.Subscribe("test:event", func(e Event) { order = append(order, 3) })

	bus.Publish("test:event", map[string]any{"k": "v"})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected handlers in subscription order, got %v", order)
	}
}

func TestPublishSkipsPanickingHandler(t *testing.T) {
	bus := New()

	var reached bool
	bus.Subscribe("test:event", func(e Event) { panic("handler bug") })
	bus.Subscribe("test:event", func(e Event) { reached = true })

	bus.Publish("test:event", nil)

	if !reached {
		t.Fatal("expected delivery to continue past a panicking handler")
	}
}

func TestPublishAsyncWaitsForAllHandlers(t *testing.T) {
	bus := New()

	var count atomic.Int32
	for range 5 {
		bus.Subscribe("test:event", func(e Event) { count.Add(1) })
	}

	bus.PublishAsync("test:event", nil)

	if got := count.Load(); got != 5 {
		t.Fatalf("expected all 5 handlers complete before PublishAsync returns, got %d", got)
	}
}

func TestHistoryRingIsBounded(t *testing.T) {
	bus := New(WithHistoryLimit(3))

	for range 10 {
		bus.Publish("test:event", nil)
	}

	if got := len(bus.History("")); got != 3 {
		t.Fatalf("expected history capped at 3, got %d", got)
	}
}

func TestHistoryFiltersByType(t *testing.T) {
	bus := New()
	bus.Publish("a", nil)
	bus.Publish("b", nil)
	bus.Publish("a", nil)

	if got := len(bus.History("a")); got != 2 {
		t.Fatalf("expected 2 events of type a, got %d", got)
	}
	if got := len(bus.History("")); got != 3 {
		t.Fatalf("expected 3 events total, got %d", got)
	}

	bus.ClearHistory()
	if got := len(bus.History("")); got != 0 {
		t.Fatalf("expected empty history after clear, got %d", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()

	var calls int
	tok := bus.SubscribeToken("test:event", func(e Event) { calls++ })

	bus.Publish("test:event", nil)
	if !bus.Unsubscribe(tok) {
		t.Fatal("expected Unsubscribe to report success")
	}
	bus.Publish("test:event", nil)

	if calls != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", calls)
	}
	if bus.Unsubscribe(tok) {
		t.Fatal("expected a second Unsubscribe of the same token to report failure")
	}
}
