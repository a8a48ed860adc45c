// Package sse implements a Server-Sent Events broker for apply progress and
// item state changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types published by the service.
const (
	TypeApplyProgress = "apply.progress"
	TypeApplyFailed   = "apply.failed"
	TypeApplyWarning  = "apply.warning"
	TypeApplyDone     = "apply.done"
	TypeItemState     = "item.state"
	TypeItemsChanged  = "items.changed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Options tune a Broker. Zero values select the defaults.
type Options struct {
	// ChangedInterval is the minimum gap between two items.changed events.
	ChangedInterval time.Duration
	// Heartbeat is how often an idle stream receives a keep-alive comment.
	Heartbeat time.Duration
	// Buffer is the number of frames queued per client before drops.
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.ChangedInterval <= 0 {
		o.ChangedInterval = 2 * time.Second
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 15 * time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	return o
}

// envelope is one request to the loop: an event to send, a request for a
// throttled items.changed, or both.
type envelope struct {
	event   *Event
	changed bool
}

// Broker fans events out to connected clients.
//
// One goroutine owns the client set, the frame counter, the items.changed
// throttle and the in-flight apply frame. Public methods talk to it over
// channels. A client that subscribes while an apply runs first receives the
// latest progress frame.
type Broker struct {
	opts Options

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	envelopes     chan envelope
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker.
func NewBroker(opts Options) *Broker {
	b := &Broker{
		opts:          opts.withDefaults(),
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		envelopes:     make(chan envelope, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

type loopState struct {
	clients     map[chan []byte]struct{}
	seq         uint64
	lastChanged time.Time
	inFlight    []byte
}

// frame encodes an event with the next id. Unencodable data yields nil.
func (st *loopState) frame(ev Event) []byte {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil
	}
	st.seq++
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", st.seq, ev.Type, payload)
}

func (st *loopState) send(raw []byte) {
	for ch := range st.clients {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	st := &loopState{clients: make(map[chan []byte]struct{})}

	for {
		select {
		case <-b.stopCh:
			for ch := range st.clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			st.clients[ch] = struct{}{}
			if st.inFlight != nil {
				ch <- st.inFlight
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := st.clients[ch]; ok {
				delete(st.clients, ch)
				close(ch)
			}

		case env := <-b.envelopes:
			if env.event != nil {
				b.deliver(st, *env.event)
			}
			if env.changed {
				b.touch(st)
			}

		case resp := <-b.countReqCh:
			resp <- len(st.clients)
		}
	}
}

func (b *Broker) deliver(st *loopState, ev Event) {
	raw := st.frame(ev)
	if raw == nil {
		return
	}
	switch ev.Type {
	case TypeApplyProgress, TypeApplyFailed, TypeApplyWarning:
		st.inFlight = raw
	case TypeApplyDone:
		st.inFlight = nil
	}
	st.send(raw)
}

func (b *Broker) touch(st *loopState) {
	now := time.Now()
	if now.Sub(st.lastChanged) < b.opts.ChangedInterval {
		return
	}
	st.lastChanged = now
	if raw := st.frame(Event{Type: TypeItemsChanged, Data: map[string]string{}}); raw != nil {
		st.send(raw)
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, b.opts.Buffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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
	case b.unsubscribeCh <- ch:
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

func (b *Broker) post(env envelope) {
	if b.closed.Load() {
		return
	}
	select {
	case b.envelopes <- env:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.post(envelope{event: &event})
}

// PublishItemState publishes an item.state event and a throttled
// items.changed event.
func (b *Broker) PublishItemState(key, state string) {
	b.post(envelope{
		event:   &Event{Type: TypeItemState, Data: map[string]string{"store_key": key, "state": state}},
		changed: true,
	})
}

// PublishChanged publishes a throttled items.changed event.
func (b *Broker) PublishChanged() {
	b.post(envelope{changed: true})
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
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	// Clients reconnect after this many milliseconds.
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", (3 * time.Second).Milliseconds())
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	heartbeat := time.NewTicker(b.opts.Heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
