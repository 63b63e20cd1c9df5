package pubsub

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesInOrder(t *testing.T) {
	b := New[int]()
	defer b.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	unsub := b.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		if len(got) == 5 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsub()

	for i := 1; i <= 5; i++ {
		b.Publish(i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i+1 {
			t.Errorf("delivery %d: got %d, expected %d", i, v, i+1)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New[string]()
	defer b.Close()

	var mu sync.Mutex
	count := 0

	unsub := b.Subscribe(func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish("one")

	// wait for the first delivery before unsubscribing
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		c := count
		mu.Unlock()
		if c == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first value never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	unsub()
	b.Publish("two")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("got %d deliveries after unsubscribe, expected 1", count)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New[int]()
	defer b.Close()

	unsub := b.Subscribe(func(int) {})
	unsub()
	unsub() // must not panic or deadlock
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewWithQueueSize[int](2)
	defer b.Close()

	block := make(chan struct{})
	unsub := b.Subscribe(func(int) {
		<-block
	})
	defer func() {
		close(block)
		unsub()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := New[int]()
	defer b.Close()

	const subscribers = 3
	var wg sync.WaitGroup
	wg.Add(subscribers)

	for i := 0; i < subscribers; i++ {
		b.Subscribe(func(v int) {
			if v == 42 {
				wg.Done()
			}
		})
	}

	b.Publish(42)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every subscriber received the value")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	b := New[int]()

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Close()
	b.Publish(1) // no-op
	b.Close()    // idempotent

	if unsub := b.Subscribe(func(int) {}); unsub == nil {
		t.Error("Subscribe after Close should still return a disposer")
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("got %d deliveries after Close, expected 0", count)
	}
}
