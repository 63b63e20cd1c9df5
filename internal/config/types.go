package config

import "time"

// GeneralConfig holds global settings that apply across the application.
type GeneralConfig struct {
	// Mode selects the transcription path: "realtime" streams audio over a
	// negotiated connection, "batch" uploads recorded chunks.
	Mode string `toml:"mode"`
}

type Config struct {
	General       GeneralConfig             `toml:"general"`
	Capture       CaptureConfig             `toml:"capture"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	Realtime      RealtimeConfig            `toml:"realtime"`
	Voice         VoiceConfig               `toml:"voice"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig holds the API key for a provider.
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type CaptureConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
	EchoCancellation  bool   `toml:"echo_cancellation"`
	NoiseSuppression  bool   `toml:"noise_suppression"`
	AutoGain          bool   `toml:"auto_gain"`
}

// TranscriptionConfig configures the chunked batch path.
type TranscriptionConfig struct {
	Provider      string        `toml:"provider"`
	Model         string        `toml:"model"`
	Language      string        `toml:"language"`
	ChunkInterval time.Duration `toml:"chunk_interval"`
}

type RealtimeConfig struct {
	// TokenEndpoint issues short-lived session credentials.
	TokenEndpoint string `toml:"token_endpoint"`
	// Endpoint is the streaming endpoint: a wss:// URL for the websocket
	// transport, an https:// signaling URL for webrtc.
	Endpoint             string        `toml:"endpoint"`
	Transport            string        `toml:"transport"` // "websocket" or "webrtc"
	TokenTimeout         time.Duration `toml:"token_timeout"`
	NegotiateTimeout     time.Duration `toml:"negotiate_timeout"`
	MaxReconnectAttempts int           `toml:"max_reconnect_attempts"`
}

// VoiceConfig is the user's sparse overlay on the built-in voice defaults.
// Pointer fields distinguish "not set" from an explicit zero.
type VoiceConfig struct {
	Voice             *string           `toml:"voice"`
	Modality          *string           `toml:"modality"`
	Temperature       *float64          `toml:"temperature"`
	MaxResponseTokens *int              `toml:"max_response_tokens"`
	AudioFormat       *string           `toml:"audio_format"`
	SampleRate        *int              `toml:"sample_rate"`
	Language          *string           `toml:"language"`
	Instructions      *string           `toml:"instructions"`
	TurnDetection     TurnDetectionToml `toml:"turn_detection"`
}

type TurnDetectionToml struct {
	Mode              *string  `toml:"mode"`
	Threshold         *float64 `toml:"threshold"`
	PrefixPaddingMs   *int     `toml:"prefix_padding_ms"`
	SilenceDurationMs *int     `toml:"silence_duration_ms"`
	CreateResponse    *bool    `toml:"create_response"`
}
