package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeCancel(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch, cancel := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	cancel()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after cancel")
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// A second cancel is harmless.
	cancel()
}

func TestPublishFraming(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Type: TypeVaultCreated, Data: map[string]string{"path": "a.md"}})
	b.Publish(Event{Type: TypeVaultUpdated, Data: map[string]string{"path": "a.md"}})

	want := []string{
		"id: 1\nevent: vault.created\ndata: {\"path\":\"a.md\"}\n\n",
		"id: 2\nevent: vault.updated\ndata: {\"path\":\"a.md\"}\n\n",
	}
	for i, w := range want {
		select {
		case msg := <-ch:
			if string(msg) != w {
				t.Errorf("message %d = %q, want %q", i, msg, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func drain(ch <-chan []byte) (history, vault []string) {
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "event: "+TypeHistoryUpdated) {
				history = append(history, s)
			} else {
				vault = append(vault, s)
			}
		default:
			return history, vault
		}
	}
}

func TestPublishVaultEvent(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.PublishVaultEvent("created", "a.md")
	b.PublishVaultEvent("deleted", "b.md")
	b.PublishVaultEvent("renamed", "c.md")

	time.Sleep(50 * time.Millisecond)
	_, vault := drain(ch)
	if len(vault) != 2 {
		t.Fatalf("vault events = %v, want 2", vault)
	}
	if !strings.Contains(vault[0], "event: vault.created") || !strings.Contains(vault[0], `"path":"a.md"`) {
		t.Errorf("first event = %q", vault[0])
	}
	if !strings.Contains(vault[1], "event: vault.deleted") {
		t.Errorf("second event = %q", vault[1])
	}
}

func TestPublishHistoryEvent_Throttle(t *testing.T) {
	b := NewBroker(300 * time.Millisecond)
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	// First signal goes out at once, the rest of the burst is collapsed.
	b.PublishHistoryEvent()
	b.PublishHistoryEvent()
	b.PublishHistoryEvent()

	time.Sleep(50 * time.Millisecond)
	history, _ := drain(ch)
	if len(history) != 1 {
		t.Fatalf("history events = %d, want 1 (throttled)", len(history))
	}

	time.Sleep(400 * time.Millisecond)
	history, _ = drain(ch)
	if len(history) != 1 {
		t.Errorf("trailing history events = %d, want 1", len(history))
	}

	// Quiet window: nothing further is pending.
	time.Sleep(400 * time.Millisecond)
	history, _ = drain(ch)
	if len(history) != 0 {
		t.Errorf("unexpected history events after quiet window: %d", len(history))
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeVaultUpdated, Data: map[string]string{"path": "x.md"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("stream should open with a retry hint: %q", body)
	}
	if !strings.Contains(body, "event: vault.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_EndsOnClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after Close")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	_, cancel := b.Subscribe()
	defer cancel()

	// Nobody reads; publishing past the client buffer must not block.
	for i := 0; i < clientBuffer+10; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	if b.ClientCount() != 1 {
		t.Error("slow client should stay subscribed")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch, cancel := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// No-ops after close.
	cancel()
	b.Close()
	b.Publish(Event{Type: TypeVaultUpdated, Data: map[string]string{"path": "x.md"}})
	b.PublishVaultEvent("updated", "x.md")
	b.PublishHistoryEvent()
	if _, ok := <-func() <-chan []byte { c, _ := b.Subscribe(); return c }(); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
