package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	voicelinkDir := filepath.Join(configDir, "voicelink")
	if err := os.MkdirAll(voicelinkDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(voicelinkDir, "config.toml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("config: no config file found at %s, creating with defaults", configPath)
		if err := SaveDefaultConfig(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("config: loading configuration from %s", configPath)
	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	config.applyDefaults()

	log.Printf("config: configuration loaded successfully")
	return &config, nil
}

// applyDefaults fills zero-valued fields whose defaults are non-zero.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.General.Mode == "" {
		c.General.Mode = def.General.Mode
	}
	if c.Capture.SampleRate == 0 {
		c.Capture = def.Capture
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = def.Transcription.Provider
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = def.Transcription.Model
	}
	if c.Transcription.ChunkInterval == 0 {
		c.Transcription.ChunkInterval = def.Transcription.ChunkInterval
	}
	if c.Realtime.Transport == "" {
		c.Realtime.Transport = def.Realtime.Transport
	}
	if c.Realtime.TokenTimeout == 0 {
		c.Realtime.TokenTimeout = def.Realtime.TokenTimeout
	}
	if c.Realtime.NegotiateTimeout == 0 {
		c.Realtime.NegotiateTimeout = def.Realtime.NegotiateTimeout
	}
	if c.Realtime.MaxReconnectAttempts == 0 {
		c.Realtime.MaxReconnectAttempts = def.Realtime.MaxReconnectAttempts
	}
}

func SaveDefaultConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	configContent := `# Voicelink Configuration
# This file is automatically generated with defaults.
# Edit values as needed - changes are applied immediately without daemon restart.

[general]
  mode = "realtime"            # Transcription path ("realtime" = streaming, "batch" = chunked upload)

# Microphone Capture Configuration
[capture]
  sample_rate = 16000          # Audio sample rate in Hz (16000 recommended for speech)
  channels = 1                 # Number of audio channels (1 = mono, 2 = stereo)
  format = "s16le"             # Audio format (s16le = 16-bit signed little-endian)
  buffer_size = 4096           # Internal buffer size in bytes (larger = less CPU, more latency)
  device = ""                  # PipeWire capture device (empty = use default microphone)
  channel_buffer_size = 30     # Audio frame buffer size (frames to buffer)
  echo_cancellation = true     # Route through the echo-cancelled source when available
  noise_suppression = true     # Suppress steady background noise
  auto_gain = true             # Automatic input gain control

# Batch Transcription Configuration (used when mode = "batch")
[transcription]
  provider = "openai"          # Batch transcription service ("openai" only currently supported)
  model = "whisper-1"          # Model name ("whisper-1" recommended)
  language = ""                # Language code (empty for auto-detect, "en", "it", "es", etc.)
  chunk_interval = "2s"        # How often buffered audio is flushed for transcription

# Realtime Session Configuration (used when mode = "realtime")
[realtime]
  token_endpoint = ""          # HTTPS endpoint issuing short-lived session credentials
  endpoint = ""                # Streaming endpoint (wss:// for websocket, https:// for webrtc signaling)
  transport = "websocket"      # Streaming transport ("websocket" or "webrtc")
  token_timeout = "10s"        # Timeout for credential issuance
  negotiate_timeout = "15s"    # Timeout for connection negotiation
  max_reconnect_attempts = 3   # Reconnects attempted before the session fails

# Voice Configuration (overlays on built-in defaults; omit a key to keep the default)
[voice]
  # voice = "sage"             # Companion voice
  # modality = "both"          # Response modality ("text", "audio", "both")
  # temperature = 0.8          # Sampling temperature
  # language = ""              # Language code (empty for auto-detect)
  # instructions = ""          # Persona instructions

# [voice.turn_detection]
  # mode = "server_vad"        # "server_vad", "semantic_vad" or "none"
  # threshold = 0.5            # VAD activation threshold (0..1)
  # prefix_padding_ms = 300
  # silence_duration_ms = 500
  # create_response = true     # Generate a companion response after each turn

# Provider API keys (or use environment variables like OPENAI_API_KEY)
[providers.openai]
  api_key = ""
`

	if _, err := file.WriteString(configContent); err != nil {
		return fmt.Errorf("failed to write config content: %w", err)
	}

	return nil
}
