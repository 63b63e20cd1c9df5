package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/3obby/voicelink/internal/pubsub"
	"github.com/3obby/voicelink/internal/voiceconfig"
)

// Reconnection policy: bounded attempts with exponential backoff.
const DefaultMaxReconnectAttempts = 3

var defaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

var errConnectionClosed = errors.New("event channel closed")

// Options wires the coordinator's collaborators. The coordinator is an
// explicitly constructed, dependency-injected instance owned by the
// composition root; there is no package-level singleton.
type Options struct {
	Tokens       TokenIssuer
	NewTransport TransportFactory
	Mic          MicSource

	MaxReconnectAttempts int           // 0 means DefaultMaxReconnectAttempts
	TokenTimeout         time.Duration // 0 means 10s
	NegotiateTimeout     time.Duration // 0 means 15s
	RetryDelays          []time.Duration
}

// Coordinator manages exactly one realtime audio/text session end-to-end:
// credential issuance, transport negotiation, the audio send pipeline,
// inbound event decoding and bounded reconnection. All public operations
// return results rather than panicking; transient failures surface as
// status events.
type Coordinator struct {
	opts Options

	transcripts *pubsub.Bus[TranscriptSegment]
	statuses    *pubsub.Bus[StatusEvent]
	responses   *pubsub.Bus[ResponseChunk]
	audioSink   atomic.Pointer[func([]byte)]

	mu        sync.Mutex
	sess      *liveSession
	nextVoice voiceconfig.Config
}

// liveSession is the coordinator-internal state of the current session.
// State transitions happen only on the session's run goroutine (plus the
// initial transition in StartSession), serialized through the single
// inbound select loop.
type liveSession struct {
	id               string
	status           Status
	reconnectAttempt int
	voice            voiceconfig.Config

	ctx       context.Context
	cancel    context.CancelFunc
	mic       MicHandle
	transport Transport
	decode    *decodeState
	done      chan struct{}
}

func (s *liveSession) terminal() bool {
	return s.status == StatusClosed || s.status == StatusFailed
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.TokenTimeout <= 0 {
		opts.TokenTimeout = 10 * time.Second
	}
	if opts.NegotiateTimeout <= 0 {
		opts.NegotiateTimeout = 15 * time.Second
	}
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = defaultRetryDelays
	}
	return &Coordinator{
		opts:        opts,
		transcripts: pubsub.New[TranscriptSegment](),
		statuses:    pubsub.New[StatusEvent](),
		responses:   pubsub.New[ResponseChunk](),
		nextVoice:   voiceconfig.Default(),
	}
}

// SubscribeTranscription registers a transcript consumer; the returned
// disposer removes it.
func (c *Coordinator) SubscribeTranscription(fn func(TranscriptSegment)) func() {
	return c.transcripts.Subscribe(fn)
}

func (c *Coordinator) SubscribeStatus(fn func(StatusEvent)) func() {
	return c.statuses.Subscribe(fn)
}

func (c *Coordinator) SubscribeResponse(fn func(ResponseChunk)) func() {
	return c.responses.Subscribe(fn)
}

// SetAudioSink installs the playback destination for the companion's
// returned audio. The payload is opaque PCM; nil disables playback.
func (c *Coordinator) SetAudioSink(fn func([]byte)) {
	if fn == nil {
		c.audioSink.Store(nil)
		return
	}
	c.audioSink.Store(&fn)
}

// SetVoiceConfig merges p into the configuration used by the NEXT
// negotiation. An in-flight session keeps the snapshot it was negotiated
// with.
func (c *Coordinator) SetVoiceConfig(p voiceconfig.Partial) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextVoice = c.nextVoice.Merge(p)
}

// Snapshot returns a copy of the current session state, if any.
func (c *Coordinator) Snapshot() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Session{Status: StatusIdle}, false
	}
	return Session{
		ID:               c.sess.id,
		Status:           c.sess.status,
		ReconnectAttempt: c.sess.reconnectAttempt,
		VoiceConfig:      c.sess.voice,
	}, true
}

// StartSession begins a new session. Returns ErrAlreadyActive if one is
// live — the existing session is left untouched. The microphone is
// acquired here and released on every termination path.
func (c *Coordinator) StartSession(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil && !c.sess.terminal() {
		c.mu.Unlock()
		return ErrAlreadyActive
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &liveSession{
		id:     uuid.NewString(),
		status: StatusNegotiating,
		voice:  c.nextVoice,
		ctx:    sctx,
		cancel: cancel,
		decode: newDecodeState(),
		done:   make(chan struct{}),
	}
	c.sess = s
	c.mu.Unlock()

	log.Printf("coordinator: starting session %s (voice=%s, modality=%s)", s.id, s.voice.Voice, s.voice.Modality)
	c.statuses.Publish(StatusEvent{State: StateConnecting})

	mic, err := c.opts.Mic.Acquire(sctx)
	if err != nil {
		c.finish(s, StatusFailed, StatusEvent{State: StateError, Message: fmt.Sprintf("microphone: %v", err)})
		close(s.done)
		return err
	}
	s.mic = mic

	go c.run(s)
	return nil
}

// StopSession terminates the current session. Idempotent and safe to call
// from any state, including mid-negotiation; blocks until cleanup is
// complete.
func (c *Coordinator) StopSession() {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// SendText injects a user-authored text turn into the active session.
// Returns false with no error when the channel is not streaming — an
// expected, recoverable condition.
func (c *Coordinator) SendText(text string) (bool, error) {
	c.mu.Lock()
	s := c.sess
	var tr Transport
	if s != nil && s.status == StatusStreaming {
		tr = s.transport
	}
	c.mu.Unlock()

	if tr == nil {
		return false, nil
	}
	if err := tr.Send(textMessage(text)); err != nil {
		return false, fmt.Errorf("send text: %w", err)
	}
	return true, nil
}

// Close tears down the coordinator: stops any session and shuts down the
// fan-out buses.
func (c *Coordinator) Close() {
	c.StopSession()
	c.transcripts.Close()
	c.responses.Close()
	c.statuses.Close()
}

// run drives the session state machine: (re)negotiate, stream, reconnect
// within budget, and clean up on every exit path.
func (c *Coordinator) run(s *liveSession) {
	defer func() {
		s.mic.Release()
		close(s.done)
	}()

	for {
		if s.ctx.Err() != nil {
			c.finish(s, StatusClosed, StatusEvent{State: StateDisconnected, Message: "session stopped"})
			return
		}

		cred, err := c.issueCredential(s)
		if err != nil {
			if s.ctx.Err() != nil {
				c.finish(s, StatusClosed, StatusEvent{State: StateDisconnected, Message: "session stopped"})
				return
			}
			var ce *CredentialError
			if errors.As(err, &ce) {
				// bad parameters stay bad; surfaced verbatim, no retry
				c.finish(s, StatusFailed, StatusEvent{State: StateError, Message: ce.Detail})
				return
			}
			if !c.scheduleReconnect(s, err) {
				return
			}
			continue
		}

		transport := c.opts.NewTransport()
		nctx, ncancel := context.WithTimeout(s.ctx, c.opts.NegotiateTimeout)
		err = transport.Negotiate(nctx, cred, s.voice)
		ncancel()
		if err != nil {
			_ = transport.Close()
			if s.ctx.Err() != nil {
				c.finish(s, StatusClosed, StatusEvent{State: StateDisconnected, Message: "session stopped"})
				return
			}
			if !c.scheduleReconnect(s, err) {
				return
			}
			continue
		}

		c.mu.Lock()
		s.status = StatusStreaming
		s.reconnectAttempt = 0
		s.transport = transport
		c.mu.Unlock()
		log.Printf("coordinator: session %s streaming", s.id)
		c.statuses.Publish(StatusEvent{State: StateConnected})

		streamErr := c.streamLoop(s, transport)

		c.mu.Lock()
		s.transport = nil
		c.mu.Unlock()
		_ = transport.Close()

		if streamErr == nil {
			// explicit stop: termination signal already sent by streamLoop
			c.finish(s, StatusClosed, StatusEvent{State: StateDisconnected, Message: "session stopped"})
			return
		}
		if !c.scheduleReconnect(s, streamErr) {
			return
		}
	}
}

func (c *Coordinator) issueCredential(s *liveSession) (Credential, error) {
	tctx, cancel := context.WithTimeout(s.ctx, c.opts.TokenTimeout)
	defer cancel()
	return c.opts.Tokens.Issue(tctx, s.voice)
}

// streamLoop is the session's single serialized queue: microphone frames,
// inbound protocol events and cancellation all pass through one select so
// the decoder and the audio pipeline can never interleave. Returns nil on
// explicit stop, an error on transport failure.
func (c *Coordinator) streamLoop(s *liveSession, transport Transport) error {
	events := transport.Events()
	frames := s.mic.Frames()
	micErrs := s.mic.Errs()

	for {
		select {
		case <-s.ctx.Done():
			// graceful termination while the channel is still open
			_ = transport.Send(sessionDeleteMessage())
			return nil

		case raw, ok := <-events:
			if !ok {
				return errConnectionClosed
			}
			if err := c.handleEvent(s, raw); err != nil {
				return err
			}

		case frame, ok := <-frames:
			if !ok {
				return errors.New("audio capture ended unexpectedly")
			}
			if err := transport.Send(audioAppendMessage(frame.Data)); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}

		case err, ok := <-micErrs:
			if !ok {
				micErrs = nil
				continue
			}
			log.Printf("coordinator: capture warning: %v", err)
			c.statuses.Publish(StatusEvent{State: StateWarning, Message: err.Error()})
		}
	}
}

// scheduleReconnect applies the bounded retry policy. Returns false when
// the budget is exhausted (session is then Failed) or the session was
// stopped during backoff.
func (c *Coordinator) scheduleReconnect(s *liveSession, cause error) bool {
	c.mu.Lock()
	if s.reconnectAttempt >= c.opts.MaxReconnectAttempts {
		c.mu.Unlock()
		c.finish(s, StatusFailed, StatusEvent{
			State:   StateError,
			Message: fmt.Sprintf("connection lost after %d reconnect attempts: %v", c.opts.MaxReconnectAttempts, cause),
		})
		return false
	}
	s.reconnectAttempt++
	attempt := s.reconnectAttempt
	s.status = StatusReconnecting
	c.mu.Unlock()

	log.Printf("coordinator: session %s reconnecting (attempt %d/%d): %v", s.id, attempt, c.opts.MaxReconnectAttempts, cause)
	c.statuses.Publish(StatusEvent{
		State:   StateError,
		Message: fmt.Sprintf("transport error: %v; reconnecting (attempt %d/%d)", cause, attempt, c.opts.MaxReconnectAttempts),
	})

	delay := c.opts.RetryDelays[len(c.opts.RetryDelays)-1]
	if attempt-1 < len(c.opts.RetryDelays) {
		delay = c.opts.RetryDelays[attempt-1]
	}

	select {
	case <-s.ctx.Done():
		c.finish(s, StatusClosed, StatusEvent{State: StateDisconnected, Message: "session stopped"})
		return false
	case <-time.After(delay):
	}

	c.mu.Lock()
	s.status = StatusNegotiating
	c.mu.Unlock()
	c.statuses.Publish(StatusEvent{State: StateConnecting})
	return true
}

// finish moves s to a terminal state and emits the closing status event.
// The session slot stays occupied (for Snapshot) until the next
// StartSession replaces it.
func (c *Coordinator) finish(s *liveSession, status Status, ev StatusEvent) {
	c.mu.Lock()
	if !s.terminal() {
		s.status = status
	}
	c.mu.Unlock()
	s.cancel()
	log.Printf("coordinator: session %s %s", s.id, status)
	c.statuses.Publish(ev)
}

// deliverSegment publishes a transcript segment unless it belongs to a
// stale session: events tagged with an old session id are dropped, even
// if they arrive after a new session started.
func (c *Coordinator) deliverSegment(sessionID string, seg TranscriptSegment) {
	if !c.isCurrent(sessionID) {
		log.Printf("coordinator: dropping transcript from stale session %s", sessionID)
		return
	}
	c.transcripts.Publish(seg)
}

func (c *Coordinator) deliverResponse(sessionID string, chunk ResponseChunk) {
	if !c.isCurrent(sessionID) {
		log.Printf("coordinator: dropping response from stale session %s", sessionID)
		return
	}
	c.responses.Publish(chunk)
}

func (c *Coordinator) isCurrent(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.id == sessionID && !c.sess.terminal()
}
