package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a scriptable Backend for testing Source and Handle.
type fakeBackend struct {
	startErr error

	mu       sync.Mutex
	started  bool
	stops    int
	frameCh  chan Frame
	errCh    chan error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		frameCh: make(chan Frame, 8),
		errCh:   make(chan error, 1),
	}
}

func (f *fakeBackend) Start(ctx context.Context, c Constraints) (<-chan Frame, <-chan error, error) {
	if f.startErr != nil {
		return nil, nil, f.startErr
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return f.frameCh, f.errCh, nil
}

func (f *fakeBackend) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func TestAcquireRejectsInvalidConstraints(t *testing.T) {
	src := NewSourceWithBackend(func() Backend { return newFakeBackend() })

	tests := []struct {
		name string
		mod  func(*Constraints)
	}{
		{"zero sample rate", func(c *Constraints) { c.SampleRate = 0 }},
		{"zero channels", func(c *Constraints) { c.Channels = 0 }},
		{"zero buffer size", func(c *Constraints) { c.BufferSize = 0 }},
		{"empty format", func(c *Constraints) { c.Format = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConstraints()
			tt.mod(&c)
			if _, err := src.Acquire(context.Background(), c); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAcquirePropagatesBackendError(t *testing.T) {
	backend := newFakeBackend()
	backend.startErr = ErrPermissionDenied
	src := NewSourceWithBackend(func() Backend { return backend })

	_, err := src.Acquire(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("got %v, expected ErrPermissionDenied", err)
	}
}

func TestReleaseStopsBackendExactlyOnce(t *testing.T) {
	backend := newFakeBackend()
	src := NewSourceWithBackend(func() Backend { return backend })

	handle, err := src.Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	handle.Release()
	handle.Release()
	handle.Release()

	if got := backend.stopCount(); got != 1 {
		t.Errorf("backend stopped %d times, expected 1", got)
	}
}

func TestHandleDeliversFrames(t *testing.T) {
	backend := newFakeBackend()
	src := NewSourceWithBackend(func() Backend { return backend })

	handle, err := src.Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer handle.Release()

	want := []byte{1, 2, 3, 4}
	backend.frameCh <- Frame{Data: want, Timestamp: time.Now()}

	select {
	case frame := <-handle.Frames():
		if string(frame.Data) != string(want) {
			t.Errorf("got frame %v, expected %v", frame.Data, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestChunkerFlushesAndClearsBuffer(t *testing.T) {
	ck := NewChunker(16000, 1, 50*time.Millisecond)

	frames := make(chan Frame, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ck.Run(ctx, frames)

	frames <- Frame{Data: []byte{1, 1, 2, 2}, Timestamp: time.Now()}

	var first []byte
	select {
	case first = <-ck.Chunks():
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk flushed")
	}

	// WAV container around the 4 PCM bytes
	if len(first) != 44+4 {
		t.Errorf("chunk length %d, expected 48", len(first))
	}
	if string(first[:4]) != "RIFF" {
		t.Errorf("chunk does not start with RIFF header: %q", first[:4])
	}

	// buffer must be cleared: next flush only carries new audio
	frames <- Frame{Data: []byte{9, 9}, Timestamp: time.Now()}
	select {
	case second := <-ck.Chunks():
		if len(second) != 44+2 {
			t.Errorf("second chunk length %d, expected 46 (buffer not cleared?)", len(second))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no second chunk flushed")
	}
}

func TestChunkerFlushesRemainderOnClose(t *testing.T) {
	ck := NewChunker(16000, 1, time.Hour) // ticker never fires

	frames := make(chan Frame, 1)
	frames <- Frame{Data: []byte{5, 5}, Timestamp: time.Now()}
	close(frames)

	done := make(chan struct{})
	go func() {
		ck.Run(context.Background(), frames)
		close(done)
	}()

	select {
	case chunk, ok := <-ck.Chunks():
		if !ok {
			t.Fatal("chunks channel closed without final flush")
		}
		if len(chunk) != 44+2 {
			t.Errorf("final chunk length %d, expected 46", len(chunk))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no final chunk")
	}

	<-done
	if _, ok := <-ck.Chunks(); ok {
		t.Error("chunks channel should be closed after Run returns")
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	raw := make([]byte, 100)
	wav := EncodeWAV(raw, 16000, 1)

	if len(wav) != 144 {
		t.Fatalf("wav length %d, expected 144", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if string(wav[36:40]) != "data" {
		t.Errorf("missing data marker, got %q", wav[36:40])
	}
}

func TestBuildPwRecordArgs(t *testing.T) {
	t.Run("explicit device wins", func(t *testing.T) {
		c := DefaultConstraints()
		c.Device = "alsa_input.usb-mic"
		args := buildPwRecordArgs(c)
		if !containsPair(args, "--target", "alsa_input.usb-mic") {
			t.Errorf("expected explicit target, got %v", args)
		}
	})

	t.Run("echo cancellation targets processed source", func(t *testing.T) {
		c := DefaultConstraints()
		args := buildPwRecordArgs(c)
		if !containsPair(args, "--target", "echo-cancel-source") {
			t.Errorf("expected echo-cancel-source target, got %v", args)
		}
	})

	t.Run("no dsp, no target", func(t *testing.T) {
		c := DefaultConstraints()
		c.EchoCancellation = false
		args := buildPwRecordArgs(c)
		for _, a := range args {
			if a == "--target" {
				t.Errorf("unexpected target flag: %v", args)
			}
		}
	})
}

func containsPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
