// Package sse implements a Server-Sent Events broker announcing coverage
// reloads.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Coverage event kinds.
const (
	KindReloaded = "reloaded"
	KindFailed   = "failed"
)

const (
	clientBuffer     = 64
	defaultHeartbeat = 30 * time.Second
)

type reload struct {
	kind     string
	checksum string
	detail   string
}

// Broker fans events out to connected SSE clients.
//
// The client set, the event counter, the last reload message and the
// coverage.changed throttle are owned by one loop goroutine.
type Broker struct {
	changedMin time.Duration
	heartbeat  time.Duration

	join    chan chan []byte
	leave   chan chan []byte
	events  chan Event
	reloads chan reload
	count   chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets how often idle streams get a comment line. Zero
// disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		b.heartbeat = d
	}
}

// NewBroker creates a broker that emits coverage.changed at most once per
// throttle interval.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		changedMin: throttle,
		heartbeat:  defaultHeartbeat,
		join:       make(chan chan []byte),
		leave:      make(chan chan []byte),
		events:     make(chan Event, 256),
		reloads:    make(chan reload, 256),
		count:      make(chan chan int),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

// encode renders e in the text/event-stream format.
func encode(id uint64, e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(id, 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(e.Type)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		lastReload  []byte
		lastChanged time.Time
	)

	send := func(e Event) []byte {
		seq++
		msg, err := encode(seq, e)
		if err != nil {
			return nil
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// Slow client; drop.
			}
		}
		return msg
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}
			// New clients learn which report is current.
			if lastReload != nil {
				ch <- lastReload
			}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.events:
			send(e)

		case r := <-b.reloads:
			if r.kind == KindFailed {
				send(Event{Type: "coverage.failed", Data: map[string]string{"checksum": r.checksum, "error": r.detail}})
				continue
			}
			if r.kind != KindReloaded {
				continue
			}
			lastReload = send(Event{Type: "coverage.reloaded", Data: map[string]string{"checksum": r.checksum}})
			if now := time.Now(); now.Sub(lastChanged) >= b.changedMin {
				lastChanged = now
				send(Event{Type: "coverage.changed", Data: map[string]string{}})
			}

		case resp := <-b.count:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
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
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- e:
	case <-b.stopped:
	}
}

// PublishCoverageEvent announces a reload attempt. A successful reload is
// followed by a throttled coverage.changed event and replayed to clients
// that connect later.
func (b *Broker) PublishCoverageEvent(kind, checksum, detail string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.reloads <- reload{kind: kind, checksum: checksum, detail: detail}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
