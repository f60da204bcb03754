// Package sse implements a Server-Sent Events broker for vault and history
// change notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/vaultgate/internal/metrics"
)

// Event types.
const (
	TypeVaultCreated   = "vault.created"
	TypeVaultUpdated   = "vault.updated"
	TypeVaultDeleted   = "vault.deleted"
	TypeHistoryUpdated = "history.updated"
)

const (
	keepAliveInterval = 15 * time.Second
	clientBuffer      = 64
	retryMillis       = 3000
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// hub is the state owned by the broker loop.
type hub struct {
	clients map[chan []byte]struct{}
	nextID  uint64

	lastHistory time.Time
	trailing    *time.Timer
}

func (h *hub) add(ch chan []byte) {
	h.clients[ch] = struct{}{}
	metrics.SetSSEClients(len(h.clients))
}

func (h *hub) remove(ch chan []byte) {
	if _, ok := h.clients[ch]; !ok {
		return
	}
	delete(h.clients, ch)
	close(ch)
	metrics.SetSSEClients(len(h.clients))
}

func (h *hub) closeAll() {
	if h.trailing != nil {
		h.trailing.Stop()
	}
	for ch := range h.clients {
		close(ch)
	}
	clear(h.clients)
	metrics.SetSSEClients(0)
}

// broadcast frames event with the next id. Slow clients whose buffer is
// full miss the event; the id gap tells them so.
func (h *hub) broadcast(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	h.nextID++
	raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.nextID, event.Type, payload))
	for ch := range h.clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

// history emits history.updated now, or arms the trailing timer when the
// last one went out less than window ago. The returned channel is non-nil
// while a trailing emission is pending.
func (h *hub) history(window time.Duration, pending <-chan time.Time) <-chan time.Time {
	if wait := window - time.Since(h.lastHistory); wait > 0 {
		if pending == nil {
			h.trailing = time.NewTimer(wait)
			pending = h.trailing.C
		}
		return pending
	}
	h.emitHistory()
	return pending
}

func (h *hub) emitHistory() {
	h.lastHistory = time.Now()
	h.broadcast(Event{Type: TypeHistoryUpdated, Data: map[string]string{}})
}

// Broker fans vault and history events out to SSE clients.
//
// A single event loop goroutine owns the hub. Public methods talk to it
// through channels.
type Broker struct {
	historyMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	historyCh     chan struct{}
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits history.updated at most once per
// historyThrottle. A change inside the window is delivered when it ends.
func NewBroker(historyThrottle time.Duration) *Broker {
	if historyThrottle <= 0 {
		historyThrottle = 2 * time.Second
	}

	b := &Broker{
		historyMin:    historyThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		historyCh:     make(chan struct{}, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{clients: make(map[chan []byte]struct{})}
	var trailing <-chan time.Time

	for {
		select {
		case <-b.stopCh:
			h.closeAll()
			return
		case ch := <-b.subscribeCh:
			h.add(ch)
		case ch := <-b.unsubscribeCh:
			h.remove(ch)
		case event := <-b.publishCh:
			h.broadcast(event)
		case <-b.historyCh:
			trailing = h.history(b.historyMin, trailing)
		case <-trailing:
			trailing = nil
			h.emitHistory()
		case resp := <-b.countReqCh:
			resp <- len(h.clients)
		}
	}
}

// Close stops the loop and closes every client stream. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned channel yields framed SSE
// messages and is closed by cancel or by Close.
func (b *Broker) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch, func() {}
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
		return ch, func() {}
	}
	return ch, func() {
		select {
		case b.unsubscribeCh <- ch:
		case <-b.stopped:
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishVaultEvent publishes a document change. kind is one of "created",
// "updated" or "deleted"; other kinds are ignored.
func (b *Broker) PublishVaultEvent(kind, path string) {
	var typ string
	switch kind {
	case "created":
		typ = TypeVaultCreated
	case "updated":
		typ = TypeVaultUpdated
	case "deleted":
		typ = TypeVaultDeleted
	default:
		return
	}
	b.Publish(Event{Type: typ, Data: map[string]string{"path": path}})
}

// PublishHistoryEvent signals that the history changed. Bursts collapse
// into at most one history.updated per throttle interval.
func (b *Broker) PublishHistoryEvent() {
	if b.closed.Load() {
		return
	}
	select {
	case b.historyCh <- struct{}{}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client until it disconnects or the
// broker closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: " + strconv.Itoa(retryMillis) + "\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	events, cancel := b.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		var msg []byte
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			msg = []byte(": ping\n\n")
		case m, ok := <-events:
			if !ok {
				return
			}
			msg = m
		}
		if _, err := w.Write(msg); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
