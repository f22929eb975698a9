package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus for engine notifications.
//
// Delivery is synchronous in the publisher's goroutine, fan-out is keyed by
// Event.Type(), and handler errors are joined and returned from Publish.
// Handlers subscribed to Wildcard receive every event.
type EventBus interface {
	// Publish delivers the event to every active subscriber of its type and to
	// wildcard subscribers.
	Publish(event Event) error
	// Subscribe registers a handler for one event type (or Wildcard).
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the subscription. Nil is accepted and ignored.
	Unsubscribe(Subscription) error
	// GetMetrics returns a snapshot of delivery counters.
	GetMetrics() Metrics
}

// Wildcard subscribes a handler to all event types.
const Wildcard = "*"

// Event types published by the engine core.
const (
	EntitySpawned        = "entity.spawned"
	EntityDespawned      = "entity.despawned"
	ComponentAttached    = "component.attached"
	ComponentDetached    = "component.detached"
	ResourceLoaded       = "resource.loaded"
	ResourceFailed       = "resource.failed"
	ResourceEvicted      = "resource.evicted"
	ResourceReloaded     = "resource.reloaded"
	FileSystemMounted    = "vfs.mounted"
	FileSystemDismounted = "vfs.dismounted"
)

// Event is an immutable notification. Data is an opaque payload, usually a
// small map the devtools feed can serialize as-is.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

type (
	EventHandler func(Event) error

	Subscription interface {
		ID() string
		EventType() string
		IsActive() bool
		Cancel() error
	}

	Metrics struct {
		Published         uint64
		DeliveredHandlers uint64
		Errors            uint64
		SubscribersActive uint64
	}
)

// Publisher is the narrow view subsystems hold when they only emit events.
type Publisher interface {
	Publish(event Event) error
}
