package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// simpleEvent is the Event implementation used by the engine.
type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
}

func (e simpleEvent) Type() string         { return e.typeStr }
func (e simpleEvent) Source() string       { return e.source }
func (e simpleEvent) Timestamp() time.Time { return e.ts }
func (e simpleEvent) Data() any            { return e.data }

// NewEvent creates an Event stamped with the current time.
func NewEvent(typ, src string, data any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), data: data}
}

type subscription struct {
	id        string
	eventType string
	handler   EventHandler
	active    bool
	cancel    func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) IsActive() bool    { return s.active }
func (s *subscription) Cancel() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

type inMemoryBus struct {
	mu sync.RWMutex
	// handlers: eventType -> subID -> subscription
	handlers map[string]map[string]*subscription
	// order keeps delivery deterministic within an event type
	order   map[string][]string
	metrics Metrics
}

// New creates an empty EventBus.
func New() EventBus {
	return &inMemoryBus{
		handlers: make(map[string]map[string]*subscription),
		order:    make(map[string][]string),
	}
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("bus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]*subscription)
	}
	id := uuid.NewString()
	s := &subscription{id: id, eventType: eventType, handler: handler, active: true}
	s.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !s.active {
			return
		}
		s.active = false
		delete(b.handlers[eventType], id)
		ids := b.order[eventType]
		for i, sid := range ids {
			if sid == id {
				b.order[eventType] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
		b.metrics.SubscribersActive--
	}
	b.handlers[eventType][id] = s
	b.order[eventType] = append(b.order[eventType], id)
	b.metrics.SubscribersActive++
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) Publish(event Event) error {
	b.mu.RLock()
	subs := b.collectLocked(event.Type())
	if event.Type() != Wildcard {
		subs = append(subs, b.collectLocked(Wildcard)...)
	}
	b.mu.RUnlock()

	var all error
	for _, s := range subs {
		if err := s.handler(event); err != nil {
			all = errors.Join(all, err)
		}
	}

	b.mu.Lock()
	b.metrics.Published++
	b.metrics.DeliveredHandlers += uint64(len(subs))
	if all != nil {
		b.metrics.Errors++
	}
	b.mu.Unlock()
	return all
}

func (b *inMemoryBus) GetMetrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *inMemoryBus) collectLocked(eventType string) []*subscription {
	ids := b.order[eventType]
	if len(ids) == 0 {
		return nil
	}
	out := make([]*subscription, 0, len(ids))
	for _, id := range ids {
		if s := b.handlers[eventType][id]; s != nil && s.active {
			out = append(out, s)
		}
	}
	return out
}

// Emit publishes through p when it is non-nil. Subsystems hold an optional
// Publisher and call this instead of checking for nil everywhere.
func Emit(p Publisher, typ, src string, data map[string]any) error {
	if p == nil {
		return nil
	}
	return p.Publish(NewEvent(typ, src, data))
}
