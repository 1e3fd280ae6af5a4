package registry

import (
	"sync"

	"github.com/ehrlich-b/crux/internal/protocol"
)

// maxBufferedEvents bounds each subscriber's pane-event backlog: a slow or
// absent poller must
// not let the server's memory grow without limit, so the oldest events for
// that subscriber are dropped once the cap is reached.
const maxBufferedEvents = 4096

// SubscriberID identifies one IPC connection's event interest set and
// backlog. Connections key it off their own connection id, so two clients
// polling concurrently never race over each other's events.
type SubscriberID string

// subscriber holds one connection's requested PaneEventType filter (nil/empty
// means all types) and its pending backlog.
type subscriber struct {
	types  map[protocol.PaneEventType]bool
	events []protocol.PaneEvent
}

func (s *subscriber) wants(t protocol.PaneEventType) bool {
	if len(s.types) == 0 {
		return true
	}
	return s.types[t]
}

// EventHub fans pane lifecycle events out to per-connection subscriber
// buffers, each filtered by that connection's requested PaneEventType set.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[SubscriberID]*subscriber
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[SubscriberID]*subscriber)}
}

// Subscribe registers id's interest set, creating its backlog if this is the
// first call for id and replacing any previously registered filter
// otherwise. An empty types set means "all event types".
func (h *EventHub) Subscribe(id SubscriberID, types []protocol.PaneEventType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	filter := make(map[protocol.PaneEventType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}

	if sub, ok := h.subscribers[id]; ok {
		sub.types = filter
		return
	}
	h.subscribers[id] = &subscriber{types: filter}
}

// Unsubscribe removes id's interest set and backlog, called when its
// connection closes.
func (h *EventHub) Unsubscribe(id SubscriberID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

// Emit appends ev to every subscriber whose filter matches it, dropping the
// oldest buffered event for a subscriber whose backlog is already at
// capacity.
func (h *EventHub) Emit(ev protocol.PaneEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subscribers {
		if !sub.wants(ev.Type) {
			continue
		}
		if len(sub.events) >= maxBufferedEvents {
			sub.events = sub.events[1:]
		}
		sub.events = append(sub.events, ev)
	}
}

// Drain returns and clears id's buffered events. If id has never subscribed,
// it is implicitly registered with an all-types filter first, so a client
// may poll without an explicit prior subscribe.
func (h *EventHub) Drain(id SubscriberID) []protocol.PaneEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subscribers[id]
	if !ok {
		sub = &subscriber{}
		h.subscribers[id] = sub
		return nil
	}
	if len(sub.events) == 0 {
		return nil
	}
	out := sub.events
	sub.events = nil
	return out
}
