package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// Inbound protocol events are a discriminated union dispatched on the
// "type" tag. Unknown types are logged and ignored so newer server
// versions stay non-fatal.

type serverEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	ResponseID string       `json:"response_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Text       string       `json:"text,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Audio      string       `json:"audio,omitempty"`
	Language   string       `json:"language,omitempty"`
	StartMs    int          `json:"start_ms,omitempty"`
	EndMs      int          `json:"end_ms,omitempty"`
	Words      []wireWord   `json:"words,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}

type wireWord struct {
	Word    string `json:"word"`
	StartMs int    `json:"start_ms"`
	EndMs   int    `json:"end_ms"`
}

type serverError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *serverError) String() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// decodeState tracks per-session accumulation so deltas for one response
// form a single ordered stream and closed ids reject late updates.
type decodeState struct {
	responses      map[string]*strings.Builder
	doneResponses  map[string]bool
	closedSegments map[string]bool
	segments       map[string]*strings.Builder
}

func newDecodeState() *decodeState {
	return &decodeState{
		responses:      make(map[string]*strings.Builder),
		doneResponses:  make(map[string]bool),
		closedSegments: make(map[string]bool),
		segments:       make(map[string]*strings.Builder),
	}
}

// handleEvent decodes one inbound payload for session s and publishes the
// results. A returned error is terminal for the current connection and
// triggers the reconnect path; malformed payloads are dropped without
// killing the session.
func (c *Coordinator) handleEvent(s *liveSession, raw []byte) error {
	var ev serverEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Printf("coordinator: malformed event dropped: %v", err)
		return nil
	}

	st := s.decode

	switch ev.Type {
	case "conversation.item.input_audio_transcription.delta":
		if ev.ItemID == "" || ev.Delta == "" {
			return nil
		}
		if st.closedSegments[ev.ItemID] {
			log.Printf("coordinator: dropping delta for finalized segment %s", ev.ItemID)
			return nil
		}
		acc, ok := st.segments[ev.ItemID]
		if !ok {
			acc = &strings.Builder{}
			st.segments[ev.ItemID] = acc
		}
		acc.WriteString(ev.Delta)
		c.deliverSegment(s.id, TranscriptSegment{
			SegmentID:     ev.ItemID,
			Text:          acc.String(),
			IsFinal:       false,
			StartOffsetMs: ev.StartMs,
			EndOffsetMs:   ev.EndMs,
			Language:      ev.Language,
		})

	case "conversation.item.input_audio_transcription.completed":
		if ev.ItemID == "" || st.closedSegments[ev.ItemID] {
			return nil
		}
		st.closedSegments[ev.ItemID] = true
		delete(st.segments, ev.ItemID)
		c.deliverSegment(s.id, TranscriptSegment{
			SegmentID:     ev.ItemID,
			Text:          ev.Transcript,
			IsFinal:       true,
			StartOffsetMs: ev.StartMs,
			EndOffsetMs:   ev.EndMs,
			Language:      ev.Language,
			Words:         wordsFromWire(ev.Words),
		})

	case "response.text.delta":
		if ev.ResponseID == "" || ev.Delta == "" {
			return nil
		}
		if st.doneResponses[ev.ResponseID] {
			log.Printf("coordinator: dropping delta for completed response %s", ev.ResponseID)
			return nil
		}
		acc, ok := st.responses[ev.ResponseID]
		if !ok {
			acc = &strings.Builder{}
			st.responses[ev.ResponseID] = acc
		}
		acc.WriteString(ev.Delta)
		c.deliverResponse(s.id, ResponseChunk{
			ResponseID: ev.ResponseID,
			Text:       acc.String(),
			Done:       false,
		})

	case "response.text.done":
		if ev.ResponseID == "" || st.doneResponses[ev.ResponseID] {
			return nil
		}
		st.doneResponses[ev.ResponseID] = true
		delete(st.responses, ev.ResponseID)
		c.deliverResponse(s.id, ResponseChunk{
			ResponseID: ev.ResponseID,
			Text:       ev.Text,
			Done:       true,
		})

	case "response.audio.delta":
		// opaque: forwarded to playback, never decoded here
		if sink := c.audioSink.Load(); sink != nil && ev.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(ev.Audio)
			if err != nil {
				log.Printf("coordinator: bad audio payload: %v", err)
				return nil
			}
			(*sink)(pcm)
		}

	case "error":
		if ev.Error != nil {
			return fmt.Errorf("server error: %s", ev.Error.String())
		}
		return fmt.Errorf("server error event without detail")

	case "session.created", "session.updated", "input_audio_buffer.speech_started",
		"input_audio_buffer.speech_stopped", "input_audio_buffer.committed",
		"rate_limits.updated", "response.audio.done", "response.done":
		// informational; nothing to fan out

	default:
		log.Printf("coordinator: unhandled event type: %s", ev.Type)
	}

	return nil
}

func wordsFromWire(ws []wireWord) []WordTiming {
	if len(ws) == 0 {
		return nil
	}
	out := make([]WordTiming, len(ws))
	for i, w := range ws {
		out[i] = WordTiming{Word: w.Word, StartMs: w.StartMs, EndMs: w.EndMs}
	}
	return out
}
