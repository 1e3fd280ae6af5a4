package registry

import (
	"testing"

	"github.com/ehrlich-b/crux/internal/protocol"
)

func TestEventHubPerSubscriberIsolation(t *testing.T) {
	h := NewEventHub()
	h.Subscribe("conn-a", nil)
	h.Subscribe("conn-b", nil)

	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: 1})

	gotA := h.Drain("conn-a")
	if len(gotA) != 1 {
		t.Fatalf("conn-a drained %d events, want 1", len(gotA))
	}
	gotB := h.Drain("conn-b")
	if len(gotB) != 1 {
		t.Fatalf("conn-b drained %d events, want 1 (subscribers must not steal each other's backlog)", len(gotB))
	}
}

func TestEventHubDrainClearsOnlyThatSubscriber(t *testing.T) {
	h := NewEventHub()
	h.Subscribe("conn-a", nil)
	h.Subscribe("conn-b", nil)

	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: 1})
	h.Drain("conn-a")
	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: 2})

	gotA := h.Drain("conn-a")
	if len(gotA) != 1 || gotA[0].PaneID != 2 {
		t.Fatalf("conn-a drained %v, want just pane 2's event", gotA)
	}
	gotB := h.Drain("conn-b")
	if len(gotB) != 2 {
		t.Fatalf("conn-b drained %d events, want 2 (both still buffered)", len(gotB))
	}
}

func TestEventHubFiltersByType(t *testing.T) {
	h := NewEventHub()
	h.Subscribe("conn-a", []protocol.PaneEventType{protocol.PaneEventClosed})

	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: 1})
	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventClosed, PaneID: 1})

	got := h.Drain("conn-a")
	if len(got) != 1 || got[0].Type != protocol.PaneEventClosed {
		t.Fatalf("drained %v, want only the closed event", got)
	}
}

func TestEventHubEmptyFilterMeansAllTypes(t *testing.T) {
	h := NewEventHub()
	h.Subscribe("conn-a", nil)

	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: 1})
	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventClosed, PaneID: 1})

	got := h.Drain("conn-a")
	if len(got) != 2 {
		t.Fatalf("drained %d events, want 2 (no filter means all types)", len(got))
	}
}

func TestEventHubDrainWithoutSubscribeImplicitlyRegisters(t *testing.T) {
	h := NewEventHub()
	if got := h.Drain("conn-a"); got != nil {
		t.Fatalf("first drain of an unsubscribed connection = %v, want nil", got)
	}
	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: 1})
	if got := h.Drain("conn-a"); len(got) != 1 {
		t.Fatalf("second drain = %v, want 1 event now that conn-a is registered", got)
	}
}

func TestEventHubUnsubscribeStopsFutureDelivery(t *testing.T) {
	h := NewEventHub()
	h.Subscribe("conn-a", nil)
	h.Unsubscribe("conn-a")

	h.Emit(protocol.PaneEvent{Type: protocol.PaneEventCreated, PaneID: 1})
	if got := h.Drain("conn-a"); len(got) != 0 {
		t.Fatalf("drained %v after unsubscribe, want none delivered post-unsubscribe", got)
	}
}
