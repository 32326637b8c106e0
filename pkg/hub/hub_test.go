package hub

import (
	"context"
	"testing"
	"time"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func recv(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(time.Second):
		t.Fatal("no message")
		return Message{}, false
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h, _ := runHub(t)
	a, b := newClient(h, nil), newClient(h, nil)
	h.register <- a
	h.register <- b
	waitClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"text": "chair"}); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*Client{a, b} {
		m, ok := recv(t, c)
		if !ok || m.Type != JSONMessage || string(m.Data) != `{"text":"chair"}` {
			t.Errorf("got %v %q", ok, m.Data)
		}
	}
}

func TestHub_Greeting(t *testing.T) {
	h := New("test", nil)
	h.OnConnect(func() (Message, bool) { return NewJSONMessage([]byte(`{"hello":1}`)), true })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newClient(h, nil)
	h.register <- c
	if m, _ := recv(t, c); string(m.Data) != `{"hello":1}` {
		t.Errorf("greeting = %q", m.Data)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := runHub(t)
	slow := newClient(h, nil)
	h.register <- slow
	waitClients(t, h, 1)

	for i := 0; i < cap(slow.send)+1; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	waitClients(t, h, 0)
}

func TestHub_UnregisterAndStop(t *testing.T) {
	h, cancel := runHub(t)
	a, b := newClient(h, nil), newClient(h, nil)
	h.register <- a
	h.register <- b
	waitClients(t, h, 2)

	h.unregister <- a
	if _, ok := recv(t, a); ok {
		t.Error("unregistered client channel still open")
	}

	cancel()
	if _, ok := recv(t, b); ok {
		t.Error("client channel open after hub stopped")
	}
	deadline := time.Now().Add(time.Second)
	for h.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("hub still running")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_LeaveAndJoinAfterStop(t *testing.T) {
	h, cancel := runHub(t)
	c := newClient(h, nil)
	h.join(c)
	waitClients(t, h, 1)

	cancel()
	if _, ok := recv(t, c); ok {
		t.Fatal("client channel open after hub stopped")
	}

	left := make(chan struct{})
	go func() {
		h.leave(c)
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave blocked on a stopped hub")
	}

	late := newClient(h, nil)
	joined := make(chan struct{})
	go func() {
		h.join(late)
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join blocked on a stopped hub")
	}
	if _, ok := recv(t, late); ok {
		t.Error("late client should get a closed queue")
	}
}
