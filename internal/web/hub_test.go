package web

import (
	"testing"

	"github.com/sweeney/layer-threshold/internal/logging"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub(logging.Discard())
	a := newClient(h, nil, "a")
	b := newClient(h, nil, "b")
	h.add(a)
	h.add(b)

	h.Broadcast([]byte("x"))

	for _, c := range []*client{a, b} {
		select {
		case msg := <-c.send:
			if string(msg) != "x" {
				t.Errorf("%s: got %q", c.remoteAddr, msg)
			}
		default:
			t.Errorf("%s: no frame queued", c.remoteAddr)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(logging.Discard())
	slow := newClient(h, nil, "slow")
	fast := newClient(h, nil, "fast")
	h.add(slow)
	h.add(fast)

	for i := 0; i < sendBuf; i++ {
		h.Broadcast([]byte("fill"))
		<-fast.send
	}
	h.Broadcast([]byte("overflow"))

	if h.Len() != 1 {
		t.Fatalf("slow client should be dropped, have %d clients", h.Len())
	}

	// Drain and check the send channel was closed.
	n := 0
	for range slow.send {
		n++
	}
	if n != sendBuf {
		t.Errorf("slow client should keep its queued frames, got %d", n)
	}

	select {
	case msg := <-fast.send:
		if string(msg) != "overflow" {
			t.Errorf("fast client got %q", msg)
		}
	default:
		t.Error("fast client should receive the frame")
	}
}

func TestHubCloseRefusesNewClients(t *testing.T) {
	h := NewHub(nil)
	c := newClient(h, nil, "a")
	h.add(c)

	h.Close()
	if _, ok := <-c.send; ok {
		t.Error("send should be closed")
	}
	if h.add(newClient(h, nil, "late")) {
		t.Error("closed hub should refuse clients")
	}
	if h.Len() != 0 {
		t.Errorf("expected 0 clients, got %d", h.Len())
	}

	// Removing an already closed client is a no-op.
	h.remove(c, "test")
}
