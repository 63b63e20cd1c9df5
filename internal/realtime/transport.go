package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/3obby/voicelink/internal/voiceconfig"
)

// Transport is one negotiated streaming connection. A fresh Transport is
// created for every negotiation attempt; it performs no reconnection of
// its own — reconnection policy lives in the coordinator. The Events
// channel must deliver inbound payloads in arrival order and is closed
// when the connection drops.
type Transport interface {
	Negotiate(ctx context.Context, cred Credential, cfg voiceconfig.Config) error
	Send(msg []byte) error
	Events() <-chan []byte
	Close() error
}

// TransportFactory builds a fresh transport for each negotiation attempt.
type TransportFactory func() Transport

// Outbound control messages.

type outboundEvent struct {
	Type    string           `json:"type"`
	Audio   string           `json:"audio,omitempty"`
	Message *outboundMessage `json:"message,omitempty"`
	Session *sessionConfig   `json:"session,omitempty"`
}

type outboundMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type sessionConfig struct {
	Voice             string         `json:"voice,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
	MaxResponseTokens int            `json:"max_response_output_tokens,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	TurnDetection     *turnDetection `json:"turn_detection,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
}

func audioAppendMessage(pcm []byte) []byte {
	msg, _ := json.Marshal(outboundEvent{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
	return msg
}

func textMessage(text string) []byte {
	msg, _ := json.Marshal(outboundEvent{
		Type:    "message.create",
		Message: &outboundMessage{Content: text, Role: "user"},
	})
	return msg
}

func sessionDeleteMessage() []byte {
	msg, _ := json.Marshal(outboundEvent{Type: "session.delete"})
	return msg
}

func sessionUpdateMessage(cfg voiceconfig.Config) []byte {
	msg, _ := json.Marshal(outboundEvent{
		Type: "session.update",
		Session: &sessionConfig{
			Voice:             cfg.Voice,
			Modalities:        modalities(cfg.Modality),
			Instructions:      cfg.Instructions,
			Temperature:       cfg.Temperature,
			MaxResponseTokens: cfg.MaxResponseTokens,
			InputAudioFormat:  cfg.AudioFormat,
			TurnDetection: &turnDetection{
				Type:              cfg.TurnDetection.Mode,
				Threshold:         cfg.TurnDetection.Threshold,
				PrefixPaddingMs:   cfg.TurnDetection.PrefixPaddingMs,
				SilenceDurationMs: cfg.TurnDetection.SilenceDurationMs,
				CreateResponse:    cfg.TurnDetection.CreateResponse,
			},
		},
	})
	return msg
}

func modalities(m string) []string {
	switch m {
	case "both":
		return []string{"text", "audio"}
	case "audio":
		return []string{"audio"}
	default:
		return []string{"text"}
	}
}
