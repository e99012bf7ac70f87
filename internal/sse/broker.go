// Package sse streams vault change notifications as Server-Sent Events.
//
// Every event carries a sequential id. A bounded backlog lets a client
// that reconnects with Last-Event-ID pick up what it missed.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/scanvault/internal/models"
)

// Event types.
const (
	EventWritten = "vault.written"
	EventDeleted = "vault.deleted"
	EventSynced  = "vault.synced"
	EventChanged = "vault.changed"
)

// FileEvent is the payload of vault.written and vault.deleted.
type FileEvent struct {
	Path   string        `json:"path"`
	Action models.Action `json:"action"`
}

// ChangedEvent is the payload of vault.changed: every path touched since
// the previous vault.changed, in first-touch order.
type ChangedEvent struct {
	Paths []string `json:"paths"`
}

// SyncedEvent is the payload of vault.synced. A full mirror run fills the
// counters; a watched single-file copy sets Path.
type SyncedEvent struct {
	Destination string    `json:"destination"`
	Path        string    `json:"path,omitempty"`
	Copied      int       `json:"copied"`
	Unchanged   int       `json:"unchanged"`
	Skipped     int       `json:"skipped"`
	Bytes       int64     `json:"bytes"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Event is one message on the stream. The broker assigns ID on publish.
type Event struct {
	ID   uint64
	Type string
	Data any
}

func (e Event) frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", e.ID, e.Type, payload), nil
}

// Option configures a Broker.
type Option func(*Broker)

// WithHistory sets how many recent events are kept for Last-Event-ID
// replay. Zero disables replay.
func WithHistory(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.history = n
		}
	}
}

// WithHeartbeat sets the interval of keep-alive comments on idle streams.
// Zero disables them.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d >= 0 {
			b.heartbeat = d
		}
	}
}

type subscription struct {
	ch     chan []byte
	after  uint64
	replay bool
}

// Broker fans vault events out to SSE clients.
//
// One loop goroutine owns the client set, the id counter, the backlog and
// the vault.changed throttle. Public methods reach it through channels.
type Broker struct {
	throttle  time.Duration
	history   int
	heartbeat time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	batchCh       chan []models.FileOperation
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits vault.changed at most once per
// throttle interval. Paths touched inside the interval are reported by a
// trailing vault.changed when it ends.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		throttle:      throttle,
		history:       256,
		heartbeat:     25 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		batchCh:       make(chan []models.FileOperation, 64),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

type backlogEntry struct {
	id  uint64
	raw []byte
}

// hub is the loop-owned state.
type hub struct {
	clients map[chan []byte]struct{}
	backlog []backlogEntry
	limit   int
	lastID  uint64

	lastChanged time.Time
	pending     []string
	pendingSet  map[string]struct{}
}

func (h *hub) broadcast(typ string, data any) {
	raw, err := Event{ID: h.lastID + 1, Type: typ, Data: data}.frame()
	if err != nil {
		return
	}
	h.lastID++

	if h.limit > 0 {
		h.backlog = append(h.backlog, backlogEntry{id: h.lastID, raw: raw})
		if over := len(h.backlog) - h.limit; over > 0 {
			h.backlog = append(h.backlog[:0:0], h.backlog[over:]...)
		}
	}

	for ch := range h.clients {
		select {
		case ch <- raw:
		default:
			// Slow client; it can catch up through Last-Event-ID.
		}
	}
}

func (h *hub) subscribe(sub subscription) {
	if sub.replay {
		for _, e := range h.backlog {
			if e.id <= sub.after {
				continue
			}
			select {
			case sub.ch <- e.raw:
			default:
			}
		}
	}
	h.clients[sub.ch] = struct{}{}
}

func (h *hub) touch(path string) {
	if _, ok := h.pendingSet[path]; ok {
		return
	}
	h.pendingSet[path] = struct{}{}
	h.pending = append(h.pending, path)
}

func (h *hub) flushChanged(now time.Time) {
	if len(h.pending) == 0 {
		return
	}
	h.broadcast(EventChanged, ChangedEvent{Paths: h.pending})
	h.pending = nil
	h.pendingSet = make(map[string]struct{})
	h.lastChanged = now
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{
		clients:    make(map[chan []byte]struct{}),
		limit:      b.history,
		pendingSet: make(map[string]struct{}),
	}
	var (
		trailing  *time.Timer
		trailingC <-chan time.Time
	)

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range h.clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			h.subscribe(sub)

		case ch := <-b.unsubscribeCh:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			h.broadcast(event.Type, event.Data)

		case ops := <-b.batchCh:
			for _, op := range ops {
				typ := EventWritten
				if op.Action == models.ActionDelete {
					typ = EventDeleted
				}
				h.broadcast(typ, FileEvent{Path: op.Path, Action: op.Action})
				h.touch(op.Path)
			}
			now := time.Now()
			if wait := b.throttle - now.Sub(h.lastChanged); wait <= 0 {
				h.flushChanged(now)
			} else if trailingC == nil {
				trailing = time.NewTimer(wait)
				trailingC = trailing.C
			}

		case now := <-trailingC:
			trailingC = nil
			h.flushChanged(now)

		case resp := <-b.countReqCh:
			resp <- len(h.clients)
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

// Subscribe adds a client that receives events published from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscription{})
}

// SubscribeAfter adds a client and first replays backlog events with an
// id greater than after.
func (b *Broker) SubscribeAfter(after uint64) chan []byte {
	return b.subscribe(subscription{after: after, replay: true})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	sub.ch = make(chan []byte, 64+b.history)
	if b.closed.Load() {
		close(sub.ch)
		return sub.ch
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(sub.ch)
	}
	return sub.ch
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

// Publish sends an event to all connected clients. Any ID on event is
// replaced by the next sequence number.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishSynced publishes vault.synced for a mirror run or a watched copy.
func (b *Broker) PublishSynced(ev SyncedEvent) {
	b.Publish(Event{Type: EventSynced, Data: ev})
}

// PublishVaultEvent publishes the event for a single operation on path.
func (b *Broker) PublishVaultEvent(action models.Action, path string) {
	b.publishBatch([]models.FileOperation{{Action: action, Path: path}})
}

// Applied publishes vault.written or vault.deleted per applied operation
// and folds the batch into one vault.changed.
func (b *Broker) Applied(_ context.Context, ops []models.FileOperation) {
	if len(ops) == 0 {
		return
	}
	batch := make([]models.FileOperation, len(ops))
	for i, op := range ops {
		batch[i] = models.FileOperation{Action: op.Action, Path: op.Path}
	}
	b.publishBatch(batch)
}

func (b *Broker) publishBatch(ops []models.FileOperation) {
	if b.closed.Load() {
		return
	}
	select {
	case b.batchCh <- ops:
	case <-b.stopped:
	}
}

// lastEventID reads the resume point an EventSource sends on reconnect.
func lastEventID(r *http.Request) (uint64, bool) {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("last_event_id")
	}
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
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

	var ch chan []byte
	if after, ok := lastEventID(r); ok {
		ch = b.SubscribeAfter(after)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
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
