package pubchannel

import (
	"context"
	"sync"
)

// Publisher is anything that can emit a raw wire line onto the public
// channel: an in-process Bus for tests, or a radio-backed adapter
// (session.RadioPublisher) that transmits over the radio link. The Cascade engine and the Secure Channel Test publish
// through this interface so they never depend on which transport carries
// the bytes.
type Publisher interface {
	Publish(line string)
}

// Bus is the in-process public-channel medium: a single-producer,
// multi-subscriber broadcast of raw wire lines. It models the
// unauthenticated public channel in tests that run without real serial
// hardware; over the radio link, only Publish is implemented (by
// session.RadioPublisher) and inbound lines reach the Inbox via the
// session's ingest loop.
type Bus struct {
	mu   sync.Mutex
	subs []chan string
}

// NewBus returns an empty broadcast bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new listener and returns its line channel. The
// channel is buffered generously; a slow subscriber does not block
// Publish, matching the "writes are serialized, reads are asynchronous"
// shape of the real serial adapter.
func (b *Bus) Subscribe() <-chan string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan string, 256)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish broadcasts line to every current subscriber.
func (b *Bus) Publish(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
			// Subscriber fell behind; drop rather than block the sender.
			// The Cascade engine treats a dropped CAS_INIT the same as one
			// that never arrived (spec §4.4.6).
		}
	}
}

// Inbox holds one endpoint's received Public Messages in arrival order.
// Consumers await a predicate with a deadline; messages that don't match
// stay queued in order for later consumers, preserving FIFO per spec §5.
type Inbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []Message
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	ib := &Inbox{}
	ib.cond = sync.NewCond(&ib.mu)
	return ib
}

// Push appends a parsed message to the tail of the queue and wakes any
// waiters.
func (ib *Inbox) Push(m Message) {
	ib.mu.Lock()
	ib.queue = append(ib.queue, m)
	ib.mu.Unlock()
	ib.cond.Broadcast()
}

// Pump parses raw lines from ch and pushes recognized Public Messages
// until ch closes or ctx is done. It is meant to run in its own goroutine,
// one per Inbox, mirroring the single listen-task-per-adapter ownership
// rule in spec §5.
func (ib *Inbox) Pump(ctx context.Context, ch <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			if m, ok := Parse(line); ok {
				ib.Push(m)
			}
		}
	}
}

// Await blocks until a message matching predicate appears in the queue or
// ctx is done, removing and returning the first match while leaving
// earlier non-matching messages in place for other consumers.
func (ib *Inbox) Await(ctx context.Context, match func(Message) bool) (Message, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ib.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	ib.mu.Lock()
	defer ib.mu.Unlock()
	for {
		for i, m := range ib.queue {
			if match(m) {
				ib.queue = append(ib.queue[:i:i], ib.queue[i+1:]...)
				return m, true
			}
		}
		if ctx.Err() != nil {
			return Message{}, false
		}
		ib.cond.Wait()
	}
}
