package changefeed

import (
	"context"
	"testing"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/store/memory"
)

func TestEventAffects(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		path  string
		want  bool
	}{
		{name: "same path", event: Event{Path: "Clients/c1/Booths/b1"}, path: "Clients/c1/Booths/b1", want: true},
		{name: "child of update", event: Event{Path: "Clients/c1/Booths/b1"}, path: "Clients/c1/Booths/b1/vouchers/V1", want: false},
		{name: "child of delete", event: Event{Path: "Clients/c1/Booths/b1", Deleted: true}, path: "Clients/c1/Booths/b1/vouchers/V1", want: true},
		{name: "shared prefix", event: Event{Path: "Clients/c1/Booths/b1", Deleted: true}, path: "Clients/c1/Booths/b10", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.Affects(tc.path); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWrapPublishesWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(8)
	events, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	st := Wrap(memory.NewStore(), bus)

	path, _ := docpath.Parse("Clients/c1/Booths/b1/vouchers/HEMAT10")
	if _, err := st.Create(ctx, path, map[string]any{"discount": 10}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.Create(ctx, path, map[string]any{"discount": 20}); err == nil {
		t.Fatalf("expected conflict")
	}
	if err := st.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}

	first := receive(t, events)
	if first.Path != path.String() || first.Deleted || first.Data["discount"] != float64(10) {
		t.Fatalf("unexpected create event %#v", first)
	}
	second := receive(t, events)
	if !second.Deleted {
		t.Fatalf("expected delete event, got %#v", second)
	}
	select {
	case extra := <-events:
		t.Fatalf("unexpected event for failed write: %#v", extra)
	default:
	}
}

func TestBusClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus(1)
	events, _ := bus.Subscribe(ctx)
	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}
