// Package realtime implements the session coordinator that owns a single
// negotiated streaming connection to the remote speech/response service.
// It manages the session lifecycle, bounded reconnection and inbound event
// decoding, and fans results out to subscribers without ever blocking the
// audio pipeline.
package realtime

import (
	"context"

	"github.com/3obby/voicelink/internal/capture"
	"github.com/3obby/voicelink/internal/voiceconfig"
)

// Status is the coordinator's session lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusNegotiating  Status = "negotiating"
	StatusStreaming    Status = "streaming"
	StatusReconnecting Status = "reconnecting"
	StatusClosed       Status = "closed"
	StatusFailed       Status = "failed"
)

// Session is a read-only snapshot of the live session.
type Session struct {
	ID               string
	Status           Status
	ReconnectAttempt int
	VoiceConfig      voiceconfig.Config
}

// ConnState is the connection status surfaced to UI subscribers.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateError        ConnState = "error"
	StateWarning      ConnState = "warning"
)

// StatusEvent notifies subscribers of a connection status change. Only
// StateConnected means the audio pipe is live; StateConnecting may be
// emitted multiple times (initial attempt plus each reconnect).
type StatusEvent struct {
	State   ConnState
	Message string
}

// TranscriptSegment is one unit of recognized speech. Interim segments for
// the same utterance share SegmentID so consumers can replace in place; a
// final segment closes that id permanently.
type TranscriptSegment struct {
	SegmentID     string
	Text          string
	IsFinal       bool
	StartOffsetMs int
	EndOffsetMs   int
	Language      string
	Words         []WordTiming
}

type WordTiming struct {
	Word    string
	StartMs int
	EndMs   int
}

// ResponseChunk carries the companion's own reply. Interim chunks hold the
// text accumulated from deltas so far; the Done chunk carries the complete
// text and is the last event for its ResponseID.
type ResponseChunk struct {
	ResponseID string
	Text       string
	Done       bool
}

// MicHandle is the scoped microphone resource owned by a session. It is
// released on every session-termination path. *capture.Handle satisfies
// it; tests substitute fakes.
type MicHandle interface {
	Frames() <-chan capture.Frame
	Errs() <-chan error
	Release()
}

// MicSource acquires microphone handles for sessions.
type MicSource interface {
	Acquire(ctx context.Context) (MicHandle, error)
}

// NewMicSource adapts a capture source plus fixed constraints into the
// coordinator's MicSource.
func NewMicSource(src *capture.Source, c capture.Constraints) MicSource {
	return captureMic{src: src, constraints: c}
}

type captureMic struct {
	src         *capture.Source
	constraints capture.Constraints
}

func (m captureMic) Acquire(ctx context.Context) (MicHandle, error) {
	h, err := m.src.Acquire(ctx, m.constraints)
	if err != nil {
		return nil, err
	}
	return h, nil
}
