package config

import "time"

// DefaultConfig returns the initial configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Mode: "realtime",
		},
		Capture: CaptureConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16le",
			BufferSize:        4096,
			Device:            "",
			ChannelBufferSize: 30,
			EchoCancellation:  true,
			NoiseSuppression:  true,
			AutoGain:          true,
		},
		Transcription: TranscriptionConfig{
			Provider:      "openai",
			Model:         "whisper-1",
			Language:      "",
			ChunkInterval: 2 * time.Second,
		},
		Realtime: RealtimeConfig{
			TokenEndpoint:        "",
			Endpoint:             "",
			Transport:            "websocket",
			TokenTimeout:         10 * time.Second,
			NegotiateTimeout:     15 * time.Second,
			MaxReconnectAttempts: 3,
		},
		Providers: make(map[string]ProviderConfig),
	}
}
