package bus

import "time"

// Bus is a thread-safe, in-process pub/sub bus the simulation uses to fan
// out lifecycle events (spawns, completions, light changes) to statistics
// and transport collaborators.
//
// Delivery is synchronous: Publish invokes handlers in the caller's
// goroutine, so handlers must be quick or offload heavy work. Handler
// errors are joined and returned from Publish.
type Bus interface {
	// Publish delivers the event to all active subscribers of event.Type().
	Publish(event Event) error
	// PublishAsync publishes from a separate goroutine and returns a channel
	// that receives the joined delivery error (or nil), then closes.
	PublishAsync(event Event) <-chan error
	// Subscribe registers a handler for an event type and returns a handle
	// used to cancel later.
	Subscribe(eventType string, handler Handler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. Safe to call with nil.
	Unsubscribe(Subscription) error
}

// Event is an immutable message transported by the Bus. Type is the routing
// key; Data is an opaque payload consumers assert on.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// Handler is a callback invoked per delivered event. A returned error is
// aggregated into the Publish result.
type Handler func(event Event) error

// Subscription is a registered handler bound to one event type.
type Subscription interface {
	// ID is a unique identifier for this subscription.
	ID() string
	// EventType returns the event type this subscription listens to.
	EventType() string
	// IsActive reports whether this subscription is still registered.
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}
