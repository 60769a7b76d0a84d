package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBroadcastFanOut(t *testing.T) {
	h := testHub()
	a := &Client{hub: h, send: make(chan []byte, 4)}
	b := &Client{hub: h, send: make(chan []byte, 4)}
	h.register(a)
	h.register(b)

	h.Broadcast(NewEvent(TypeLogin, 42, "Ada", ""))

	for name, c := range map[string]*Client{"a": a, "b": b} {
		select {
		case data := <-c.send:
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("client %s: decode: %v", name, err)
			}
			if ev.Type != TypeLogin || ev.UserID != 42 || ev.Nickname != "Ada" {
				t.Errorf("client %s: event = %+v", name, ev)
			}
			if ev.At.IsZero() {
				t.Errorf("client %s: event missing timestamp", name)
			}
		default:
			t.Errorf("client %s received nothing", name)
		}
	}
}

func TestBroadcastDropsWhenClientFull(t *testing.T) {
	h := testHub()
	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register(c)

	h.Broadcast(NewEvent(TypeLogin, 1, "a", ""))
	h.Broadcast(NewEvent(TypeLogin, 2, "b", ""))
	h.Broadcast(NewEvent(TypeLogin, 3, "c", ""))

	if got := len(c.send); got != 1 {
		t.Errorf("buffered = %d, want 1 (overflow dropped)", got)
	}
	var ev Event
	json.Unmarshal(<-c.send, &ev)
	if ev.UserID != 1 {
		t.Errorf("kept event user = %d, want the first", ev.UserID)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	h := testHub()
	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register(c)
	if h.ClientCount() != 1 {
		t.Fatalf("count = %d", h.ClientCount())
	}

	h.unregister(c)
	h.unregister(c) // second removal must not double-close the channel
	if h.ClientCount() != 0 {
		t.Errorf("count = %d, want 0", h.ClientCount())
	}

	// Broadcasting with no clients is a no-op.
	h.Broadcast(NewEvent(TypeLogout, 0, "", ""))
}
