package bus

import (
	"errors"
	"testing"
)

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	got := 0
	_, err := b.Subscribe("vehicle.completed", func(e Event) error {
		got++
		if e.Data() != 123 {
			t.Fatalf("unexpected data: %v", e.Data())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err = b.Publish(NewEvent("vehicle.completed", "tester", 123)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got != 1 {
		t.Fatalf("handler called %d times", got)
	}
}

func TestTypeIsolation(t *testing.T) {
	b := New()
	count := 0
	_, _ = b.Subscribe("a", func(e Event) error { count++; return nil })
	_ = b.Publish(NewEvent("b", "src", nil))
	if count != 0 {
		t.Fatalf("handler received foreign event type")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	sub, _ := b.Subscribe("ev", func(e Event) error { count++; return nil })
	_ = b.Publish(NewEvent("ev", "src", nil))
	if err := b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = b.Publish(NewEvent("ev", "src", nil))
	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
	if sub.IsActive() {
		t.Fatal("subscription still active after cancel")
	}
}

func TestHandlerErrorsAggregate(t *testing.T) {
	b := New()
	e1 := errors.New("first")
	e2 := errors.New("second")
	_, _ = b.Subscribe("ev", func(e Event) error { return e1 })
	_, _ = b.Subscribe("ev", func(e Event) error { return e2 })

	err := b.Publish(NewEvent("ev", "src", nil))
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("joined error missing parts: %v", err)
	}
}

func TestPublishAsyncReturnsErrorChannel(t *testing.T) {
	b := New()
	handlerErr := errors.New("fail")
	_, err := b.Subscribe("x", func(e Event) error { return handlerErr })
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if e := <-b.PublishAsync(NewEvent("x", "src", nil)); e == nil {
		t.Fatal("expected error")
	}
}
