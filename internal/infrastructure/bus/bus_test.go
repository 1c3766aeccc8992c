package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/pkg/logger"
)

func TestPublishNeverBlocksOnHandlers(t *testing.T) {
	b := New(16, logger.NewNop())
	defer b.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	b.Subscribe(domain.EventOutput, func(domain.Event) {
		close(started)
		<-release
	})

	b.Publish(domain.Event{Type: domain.EventOutput})
	<-started

	done := make(chan struct{})
	go func() {
		b.Publish(domain.Event{Type: domain.EventOutput})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a busy handler")
	}
	close(release)
}

func TestPriorityOrderThenFIFO(t *testing.T) {
	b := New(64, logger.NewNop())
	defer b.Close()

	var mu sync.Mutex
	var got []string
	gate := make(chan struct{})
	ready := make(chan struct{})
	b.Subscribe(domain.EventOutput, func(e domain.Event) {
		if e.Payload == "gate" {
			close(ready)
			<-gate
			return
		}
		mu.Lock()
		got = append(got, e.Payload.(string))
		mu.Unlock()
	})

	// occupy the dispatcher so the rest queue up together
	b.Publish(domain.Event{Type: domain.EventOutput, Priority: 9, Payload: "gate"})
	<-ready
	b.Publish(domain.Event{Type: domain.EventOutput, Priority: 1, Payload: "low-a"})
	b.Publish(domain.Event{Type: domain.EventOutput, Priority: 5, Payload: "high"})
	b.Publish(domain.Event{Type: domain.EventOutput, Priority: 1, Payload: "low-b"})
	close(gate)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for delivery, got %v", got)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "low-a", "low-b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerPanicDoesNotStopPeersOrLaterEvents(t *testing.T) {
	b := New(16, logger.NewNop())
	defer b.Close()

	var mu sync.Mutex
	var delivered []string
	b.Subscribe(domain.EventOutput, func(domain.Event) {
		panic("boom")
	})
	b.Subscribe(domain.EventOutput, func(e domain.Event) {
		mu.Lock()
		delivered = append(delivered, e.Payload.(string))
		mu.Unlock()
	})

	b.Publish(domain.Event{Type: domain.EventOutput, Payload: "first"})
	b.Publish(domain.Event{Type: domain.EventOutput, Payload: "second"})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(delivered)
		mu.Unlock()
		if n == 2 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("peer handler starved by panic, delivered %v", delivered)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(16, logger.NewNop())

	var mu sync.Mutex
	count := 0
	unsubscribe := b.Subscribe(domain.EventCommandEnd, func(domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish(domain.Event{Type: domain.EventCommandEnd})
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := count
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first event never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	unsubscribe()
	b.Publish(domain.Event{Type: domain.EventCommandEnd})
	b.Close() // drains

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", count)
	}
}

func TestCloseDrainsPending(t *testing.T) {
	b := New(64, logger.NewNop())

	var mu sync.Mutex
	count := 0
	b.Subscribe(domain.EventOutput, func(domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	for i := 0; i < 10; i++ {
		b.Publish(domain.Event{Type: domain.EventOutput})
	}
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Fatalf("Close must drain the queue, delivered %d of 10", count)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New(16, logger.NewNop())
	b.Close()
	// must not panic or deadlock
	b.Publish(domain.Event{Type: domain.EventOutput})
}
