package pubsub

import (
	"log"
	"sync"
	"time"
)

// DefaultQueueSize is the per-subscriber delivery queue depth.
const DefaultQueueSize = 64

// Bus is an in-process fan-out bus with typed topics. Each subscriber gets
// its own delivery queue drained by a dedicated goroutine, so a slow
// consumer can never block the publisher. Values delivered to a single
// subscriber arrive in publish order; when a queue overflows the oldest
// pending value is dropped.
type Bus[T any] struct {
	mu        sync.Mutex
	subs      map[int]*subscriber[T]
	nextID    int
	queueSize int
	closed    bool

	dropped     int
	lastDropLog time.Time
}

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}
}

func New[T any]() *Bus[T] {
	return NewWithQueueSize[T](DefaultQueueSize)
}

func NewWithQueueSize[T any](size int) *Bus[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bus[T]{
		subs:      make(map[int]*subscriber[T]),
		queueSize: size,
	}
}

// Subscribe registers fn and returns a disposer that removes the
// subscription. The disposer is idempotent. fn runs on the subscriber's
// own delivery goroutine, never on the publisher's.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber[T]{
		ch:   make(chan T, b.queueSize),
		done: make(chan struct{}),
	}
	b.subs[id] = sub

	go func() {
		defer close(sub.done)
		for v := range sub.ch {
			fn(v)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
			b.mu.Unlock()
			<-sub.done
		})
	}
}

// Publish delivers v to every current subscriber without blocking. If a
// subscriber's queue is full the oldest pending value is discarded to make
// room.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			// full queue: drop oldest, then retry once
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- v:
			default:
			}
			b.dropped++
			if time.Since(b.lastDropLog) > time.Second {
				log.Printf("pubsub: dropped %d values due to slow subscribers", b.dropped)
				b.lastDropLog = time.Now()
				b.dropped = 0
			}
		}
	}
}

// Close removes all subscribers and stops their delivery goroutines.
// Publish and Subscribe become no-ops afterwards.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
		<-sub.done
	}
}
