package ws

import (
	"testing"

	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
)

func TestHubSendDeliversToKnownClient(t *testing.T) {
	h := NewHub()
	c := newClient(nil)
	h.add(c)

	h.Send(c.ID, protocol.Event{Type: protocol.EvBoardState})
	select {
	case ev := <-c.send:
		if ev.Type != protocol.EvBoardState {
			t.Fatalf("delivered %q", ev.Type)
		}
	default:
		t.Fatalf("event was not queued")
	}

	h.remove(c.ID)
	if h.Len() != 0 {
		t.Fatalf("hub still tracks %d clients", h.Len())
	}
	// unknown recipients are dropped silently
	h.Send(c.ID, protocol.Event{Type: protocol.EvBoardState})
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	c := newClient(nil)
	for i := 0; i < sendBuffer+10; i++ {
		c.enqueue(protocol.Event{Type: protocol.EvChatMessage})
	}
	if got := len(c.send); got != sendBuffer {
		t.Fatalf("queue holds %d events, want %d", got, sendBuffer)
	}
}
