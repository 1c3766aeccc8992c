// Package bus implements the in-process priority publish/subscribe mechanism
// connecting the terminal pipeline to the analysis engine and external
// listeners.
package bus

import (
	"container/heap"
	"sync"
	"time"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/ports"
)

type queuedEvent struct {
	event domain.Event
	seq   uint64
}

// eventHeap orders by priority (higher first), then FIFO within a tier.
type eventHeap []queuedEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].event.Priority != h[j].event.Priority {
		return h[i].event.Priority > h[j].event.Priority
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(queuedEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type subscriber struct {
	id      uint64
	handler func(domain.Event)
}

// Bus delivers events asynchronously on a single dispatcher goroutine.
// Publish never blocks on handler execution, and a failing handler never
// prevents delivery to its peers or to later events.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    eventHeap
	subs     map[domain.EventType][]subscriber
	nextSeq  uint64
	nextSub  uint64
	maxQueue int
	closed   bool
	done     chan struct{}
	log      ports.Logger
}

// New starts a bus whose pending queue is bounded to maxQueue events. On
// overflow the lowest-priority pending event is dropped and logged.
func New(maxQueue int, log ports.Logger) *Bus {
	if maxQueue <= 0 {
		maxQueue = 1024
	}
	b := &Bus{
		subs:     map[domain.EventType][]subscriber{},
		maxQueue: maxQueue,
		done:     make(chan struct{}),
		log:      log,
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(t domain.EventType, h func(domain.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[t] = append(b.subs[t], subscriber{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, sub := range list {
			if sub.id == id {
				next := make([]subscriber, 0, len(list)-1)
				next = append(next, list[:i]...)
				next = append(next, list[i+1:]...)
				b.subs[t] = next
				return
			}
		}
	}
}

// Publish enqueues the event for asynchronous delivery.
func (b *Bus) Publish(e domain.Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.queue) >= b.maxQueue {
		dropped := b.dropLowest()
		if b.log != nil {
			b.log.Warn("event queue full, dropping lowest-priority event",
				map[string]interface{}{"dropped": string(dropped.Type)})
		}
	}
	heap.Push(&b.queue, queuedEvent{event: e, seq: b.nextSeq})
	b.nextSeq++
	b.cond.Signal()
}

// dropLowest removes the lowest-priority, most recent pending event.
func (b *Bus) dropLowest() domain.Event {
	lowest := 0
	for i := range b.queue {
		if b.queue[i].event.Priority < b.queue[lowest].event.Priority ||
			(b.queue[i].event.Priority == b.queue[lowest].event.Priority &&
				b.queue[i].seq > b.queue[lowest].seq) {
			lowest = i
		}
	}
	dropped := b.queue[lowest].event
	heap.Remove(&b.queue, lowest)
	return dropped
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		item := heap.Pop(&b.queue).(queuedEvent)
		// delivery-time snapshot: registry mutation during dispatch is safe
		handlers := make([]subscriber, len(b.subs[item.event.Type]))
		copy(handlers, b.subs[item.event.Type])
		b.mu.Unlock()

		for _, sub := range handlers {
			b.deliver(sub, item.event)
		}
	}
}

func (b *Bus) deliver(sub subscriber, e domain.Event) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Error("event handler panicked", nil,
				map[string]interface{}{"type": string(e.Type), "panic": r})
		}
	}()
	sub.handler(e)
}

// Close drains pending events and stops the dispatcher. Publishes after
// Close are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()
	<-b.done
}

var _ ports.EventBus = (*Bus)(nil)
