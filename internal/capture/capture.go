// Package capture acquires a live microphone stream and releases it
// deterministically. The returned Handle is a scoped resource: Release
// must be called exactly once per acquisition, and is safe to call from
// any goroutine.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied means microphone access was refused. Fatal for
	// the session and user-actionable; callers must not retry automatically.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no usable capture device or backend was
	// found.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Frame is one chunk of raw PCM audio read from the device.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Constraints describe the fixed capture parameters applied when a stream
// is acquired. The DSP flags (echo cancellation, noise suppression, auto
// gain) take effect when the platform's processed capture source is
// available.
type Constraints struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int

	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16le",
		BufferSize:        4096,
		ChannelBufferSize: 30,
		EchoCancellation:  true,
		NoiseSuppression:  true,
		AutoGain:          true,
	}
}

func (c Constraints) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channels: %d", c.Channels)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid buffer size: %d", c.BufferSize)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid channel buffer size: %d", c.ChannelBufferSize)
	}
	if c.Format == "" {
		return fmt.Errorf("invalid format: empty")
	}
	return nil
}

// Backend produces the actual audio stream. The production backend shells
// out to pw-record; tests inject fakes.
type Backend interface {
	Start(ctx context.Context, c Constraints) (<-chan Frame, <-chan error, error)
	Stop() error
}

// Source acquires microphone handles from a Backend.
type Source struct {
	newBackend func() Backend
}

func NewSource() *Source {
	return &Source{newBackend: func() Backend { return newPipewireBackend() }}
}

// NewSourceWithBackend is the test seam: every Acquire gets a fresh
// backend from the factory.
func NewSourceWithBackend(factory func() Backend) *Source {
	return &Source{newBackend: factory}
}

// Acquire starts capturing with the given constraints. Failures are
// classified as ErrPermissionDenied or ErrDeviceUnavailable where the
// backend allows it.
func (s *Source) Acquire(ctx context.Context, c Constraints) (*Handle, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	backend := s.newBackend()
	captureCtx, cancel := context.WithCancel(ctx)
	frames, errs, err := backend.Start(captureCtx, c)
	if err != nil {
		cancel()
		return nil, err
	}

	return &Handle{
		frames:  frames,
		errs:    errs,
		backend: backend,
		cancel:  cancel,
	}, nil
}

// Handle is an acquired microphone stream. Release is idempotent; the
// first call stops the backend and cancels the capture context.
type Handle struct {
	frames  <-chan Frame
	errs    <-chan error
	backend Backend
	cancel  context.CancelFunc
	once    sync.Once
}

func (h *Handle) Frames() <-chan Frame { return h.frames }
func (h *Handle) Errs() <-chan error   { return h.errs }

func (h *Handle) Release() {
	h.once.Do(func() {
		h.cancel()
		_ = h.backend.Stop()
	})
}
