package bus

import (
	"testing"
)

func TestHubBroadcastStampsAndFansOut(t *testing.T) {
	h := NewHub(2)

	var a, b []Event
	h.Subscribe("a", func(e Event) { a = append(a, e) })
	h.Subscribe("b", func(e Event) { b = append(b, e) })

	h.Broadcast(Event{EventType: "Triggered Response"})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both subscribers to receive the event, got %d and %d", len(a), len(b))
	}
	if a[0].ID == "" || a[0].Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp to be stamped, got %+v", a[0])
	}

	h.Unsubscribe("b")
	h.Broadcast(Event{EventType: "AI Response"})
	if len(b) != 1 {
		t.Errorf("unsubscribed handler received %d events, want 1", len(b))
	}
	if h.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", h.Subscribers())
	}
}

func TestHubBacklogIsBounded(t *testing.T) {
	h := NewHub(2)
	for _, typ := range []string{"one", "two", "three"} {
		h.Broadcast(Event{EventType: typ})
	}
	recent := h.Recent()
	if len(recent) != 2 {
		t.Fatalf("backlog len = %d, want 2", len(recent))
	}
	if recent[0].EventType != "two" || recent[1].EventType != "three" {
		t.Errorf("backlog = %q, %q; want two, three", recent[0].EventType, recent[1].EventType)
	}
}

func TestChatInfo(t *testing.T) {
	dm := InboundMessage{PeerKind: PeerDirect}
	if got := dm.ChatInfo(); got != "Direct Message" {
		t.Errorf("direct ChatInfo = %q", got)
	}
	grp := InboundMessage{PeerKind: PeerGroup, ChatTitle: "Fans"}
	if got := grp.ChatInfo(); got != "Group: Fans" {
		t.Errorf("group ChatInfo = %q", got)
	}
}
