package hub

import (
	"context"
	"testing"
	"time"

	"photobox/internal/changefeed"
	"photobox/internal/docpath"

	"github.com/goccy/go-json"
)

func scope(t *testing.T) docpath.Path {
	t.Helper()
	p, err := docpath.Resolve("c1", "", "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return p
}

func decode(t *testing.T, payload []byte) Snapshot {
	t.Helper()
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return s
}

func TestBroadcastMatchesListenedPaths(t *testing.T) {
	h := New()
	a := NewClient("a", scope(t), 4)
	b := NewClient("b", scope(t), 4)
	h.Register(a)
	h.Register(b)
	h.Listen(a, "Clients/c1/Booths/b1")
	h.Listen(b, "Clients/c1/Booths/b1/backgrounds/home")

	h.Broadcast(changefeed.Event{Path: "Clients/c1/Booths/b1", Data: map[string]any{"name": "Lobby"}})
	if len(a.Send) != 1 || len(b.Send) != 0 {
		t.Fatalf("expected only a to hear the booth update, got a=%d b=%d", len(a.Send), len(b.Send))
	}
	got := decode(t, <-a.Send)
	if !got.Exists || got.Data["name"] != "Lobby" || got.Path != "Clients/c1/Booths/b1" {
		t.Fatalf("unexpected snapshot %#v", got)
	}

	h.Broadcast(changefeed.Event{Path: "Clients/c1/Booths/b1", Deleted: true})
	if len(a.Send) != 1 || len(b.Send) != 1 {
		t.Fatalf("deleting the booth should reach both listeners, got a=%d b=%d", len(a.Send), len(b.Send))
	}
	got = decode(t, <-b.Send)
	if got.Exists || got.Path != "Clients/c1/Booths/b1/backgrounds/home" {
		t.Fatalf("unexpected delete snapshot %#v", got)
	}
}

func TestUnlistenAndUnregister(t *testing.T) {
	h := New()
	c := NewClient("a", scope(t), 4)
	h.Register(c)
	h.Listen(c, "Clients/c1/Booths/b1")
	h.Unlisten(c, "Clients/c1/Booths/b1")
	h.Broadcast(changefeed.Event{Path: "Clients/c1/Booths/b1"})
	if len(c.Send) != 0 {
		t.Fatalf("unlistened client received a message")
	}
	h.Unregister(c)
	h.Unregister(c)
	if _, ok := <-c.Send; ok {
		t.Fatalf("send channel should be closed")
	}
	if h.Deliver(c, []byte("x")) {
		t.Fatalf("deliver to unregistered client should fail")
	}
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	h := New()
	c := NewClient("a", scope(t), 1)
	h.Register(c)
	h.Listen(c, "Clients/c1")
	h.Broadcast(changefeed.Event{Path: "Clients/c1"})
	h.Broadcast(changefeed.Event{Path: "Clients/c1"})
	if len(c.Send) != 1 {
		t.Fatalf("expected one queued message, got %d", len(c.Send))
	}
}

func TestRunForwardsBusEvents(t *testing.T) {
	h := New()
	c := NewClient("a", scope(t), 4)
	h.Register(c)
	h.Listen(c, "Clients/c1")

	bus := changefeed.NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, bus) }()

	deadline := time.After(2 * time.Second)
	for len(c.Send) == 0 {
		if err := bus.Publish(context.Background(), changefeed.Event{Path: "Clients/c1"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case <-deadline:
			t.Fatalf("event was not forwarded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"listen", `{"action":"listen","path":"Clients/c1"}`, true},
		{"unlisten", `{"action":"unlisten","path":"Clients/c1"}`, true},
		{"unknown action", `{"action":"subscribe","path":"Clients/c1"}`, false},
		{"missing path", `{"action":"listen"}`, false},
		{"not json", `listen`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := ParseMessage([]byte(tc.raw)); ok != tc.ok {
				t.Fatalf("expected %v, got %v", tc.ok, ok)
			}
		})
	}
}
