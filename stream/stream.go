// Package stream fans conversion progress events out to in-process
// subscribers such as the CLI and the job runner.
package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// MaxSubscribers bounds concurrent subscriptions per hub.
	MaxSubscribers = 64
	// SubscriberBuffer is the per-subscriber queue size.
	SubscriberBuffer = 256
	// HubBroadcastBuffer is the hub's inbound queue size.
	HubBroadcastBuffer = 2048
)

// Event types emitted by a conversion run.
const (
	RunStarted      = "run_started"
	BatchStarted    = "batch_started"
	BatchDone       = "batch_done"
	SegmentAppended = "segment_appended"
	SegmentSkipped  = "segment_skipped"
	RunFinished     = "run_finished"
	RunFailed       = "run_failed"
)

// Event types emitted by the job queue.
const (
	JobCreated = "job_created"
	JobUpdated = "job_updated"
	JobDeleted = "job_deleted"
	JobStdout  = "job_stdout"
)

// Event is one progress notification.
type Event struct {
	Type   string    `json:"type"`
	RunID  string    `json:"run_id,omitempty"`
	JobID  string    `json:"job_id,omitempty"`
	Batch  int       `json:"batch"`
	Frames int       `json:"frames"`
	Total  int       `json:"total"`
	Msg    string    `json:"msg"`
	Time   time.Time `json:"time"`
}

func (e Event) String() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s batch=%d frames=%d/%d %s", e.Type, e.Batch, e.Frames, e.Total, e.Msg)
	}
	return fmt.Sprintf("%s batch=%d frames=%d/%d", e.Type, e.Batch, e.Frames, e.Total)
}

// Subscription receives events on C until Close.
type Subscription struct {
	ID   string
	C    <-chan Event
	ch   chan Event
	hub  *Hub
	sent int64
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Stats are cumulative hub counters.
type Stats struct {
	Active            int64
	Delivered         int64
	DroppedBroadcasts int64
	DroppedClientMsgs int64
	Rejected          int64
}

// Hub delivers broadcasts to subscribers without blocking producers. A slow
// subscriber loses messages instead of stalling the pipeline.
type Hub struct {
	subs              sync.Map // map[*Subscription]struct{}
	active            int64
	delivered         int64
	droppedBroadcasts int64
	droppedClientMsgs int64
	rejected          int64
	seq               int64
	mu                sync.RWMutex // held for writing while closing a subscriber channel
	broadcast         chan Event
	shutdown          chan struct{}
	done              chan struct{}
	shutdownOnce      sync.Once
}

// NewHub starts a hub's dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		broadcast: make(chan Event, HubBroadcastBuffer),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

var defaultHub = NewHub()

// Default returns the process-wide hub.
func Default() *Hub {
	return defaultHub
}

// Broadcast sends e on the process-wide hub.
func Broadcast(e Event) {
	defaultHub.Broadcast(e)
}

// Subscribe subscribes to the process-wide hub.
func Subscribe(name string) (*Subscription, bool) {
	return defaultHub.Subscribe(name)
}

// Subscribe registers a subscriber. It returns false when the hub is full or
// shut down.
func (h *Hub) Subscribe(name string) (*Subscription, bool) {
	select {
	case <-h.shutdown:
		return nil, false
	default:
	}
	if atomic.LoadInt64(&h.active) >= MaxSubscribers {
		atomic.AddInt64(&h.rejected, 1)
		log.Warn().Str("subscriber", name).Int("max", MaxSubscribers).Msg("Subscriber limit reached")
		return nil, false
	}
	ch := make(chan Event, SubscriberBuffer)
	s := &Subscription{
		ID:  fmt.Sprintf("%s-%d", name, atomic.AddInt64(&h.seq, 1)),
		C:   ch,
		ch:  ch,
		hub: h,
	}
	h.subs.Store(s, struct{}{})
	atomic.AddInt64(&h.active, 1)
	log.Debug().Str("subscriber", s.ID).Int64("active", atomic.LoadInt64(&h.active)).Msg("Subscribed")
	return s, true
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs.LoadAndDelete(s); ok {
		atomic.AddInt64(&h.active, -1)
		close(s.ch)
		log.Debug().Str("subscriber", s.ID).Int64("sent", atomic.LoadInt64(&s.sent)).Msg("Unsubscribed")
	}
}

// Broadcast enqueues e without blocking. Time is set when zero.
func (h *Hub) Broadcast(e Event) {
	if h == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case h.broadcast <- e:
	default:
		atomic.AddInt64(&h.droppedBroadcasts, 1)
	}
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case e := <-h.broadcast:
			h.deliver(e)
		case <-h.shutdown:
			// flush what producers already enqueued
			for {
				select {
				case e := <-h.broadcast:
					h.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.subs.Range(func(key, _ any) bool {
		s := key.(*Subscription)
		select {
		case s.ch <- e:
			atomic.AddInt64(&s.sent, 1)
			atomic.AddInt64(&h.delivered, 1)
		default:
			atomic.AddInt64(&h.droppedClientMsgs, 1)
		}
		return true
	})
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Active:            atomic.LoadInt64(&h.active),
		Delivered:         atomic.LoadInt64(&h.delivered),
		DroppedBroadcasts: atomic.LoadInt64(&h.droppedBroadcasts),
		DroppedClientMsgs: atomic.LoadInt64(&h.droppedClientMsgs),
		Rejected:          atomic.LoadInt64(&h.rejected),
	}
}

// Shutdown delivers events already broadcast, stops dispatch and closes
// every subscription.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
		<-h.done
		h.subs.Range(func(key, _ any) bool {
			h.remove(key.(*Subscription))
			return true
		})
	})
}
