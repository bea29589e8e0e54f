package hub

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type testWriter struct {
	mu     sync.Mutex
	writes [][]byte
	fail   bool
	closed bool
}

func (w *testWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, message)
	if w.fail {
		return errors.New("test")
	}
	return nil
}

func (w *testWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *testWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	h := New()
	w1 := &testWriter{}
	c1 := NewConnection("default", w1)
	go c1.WritePump()
	defer c1.Close()

	h.Register(c1)
	if h.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", h.Len())
	}
	delivered, skipped := h.Broadcast([]byte("x"))
	if delivered != 1 || skipped != 0 {
		t.Fatalf("expected 1 delivered 0 skipped, got %d %d", delivered, skipped)
	}
	waitFor(t, func() bool { return w1.count() == 1 })

	h.Unregister(c1)
	delivered, _ = h.Broadcast([]byte("x"))
	if delivered != 0 {
		t.Fatalf("expected no deliveries after unregister, got %d", delivered)
	}
}

func TestHub_BroadcastWithNoSubscribers(t *testing.T) {
	h := New()
	delivered, skipped := h.Broadcast([]byte("x"))
	if delivered != 0 || skipped != 0 {
		t.Fatalf("expected nothing, got %d %d", delivered, skipped)
	}
}

func TestHub_SkipsClosedConnections(t *testing.T) {
	h := New()
	open := NewConnection("default", &testWriter{})
	closed := NewConnection("default", &testWriter{})
	closed.Close()

	h.Register(open)
	h.Register(closed)
	delivered, skipped := h.Broadcast([]byte("x"))
	if delivered != 1 || skipped != 1 {
		t.Fatalf("expected 1 delivered 1 skipped, got %d %d", delivered, skipped)
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	h := New()
	c := NewConnection("default", &testWriter{})
	h.Register(c)

	for i := 0; i < sendBuffer; i++ {
		h.Broadcast([]byte("x"))
	}
	delivered, skipped := h.Broadcast([]byte("overflow"))
	if delivered != 0 || skipped != 1 {
		t.Fatalf("expected overflow to be skipped, got %d %d", delivered, skipped)
	}
}

func TestConnection_WriteFailureCloses(t *testing.T) {
	w := &testWriter{fail: true}
	c := NewConnection("default", w)
	go c.WritePump()

	if !c.Send([]byte("x")) {
		t.Fatalf("expected first send to be queued")
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("connection not closed after write failure")
	}
	if c.Send([]byte("y")) {
		t.Fatalf("expected send on closed connection to fail")
	}
}
