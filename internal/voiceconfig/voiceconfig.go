// Package voiceconfig holds the immutable snapshot of voice and
// turn-detection parameters applied when a realtime session is negotiated.
// A Config is a plain value: Merge and Resolve always return a new value,
// so a session negotiated with an old snapshot is unaffected by later
// edits.
package voiceconfig

// TurnDetection governs when the remote service considers the user to have
// finished speaking.
type TurnDetection struct {
	Mode              string  // "server_vad", "semantic_vad" or "none"
	Threshold         float64 // VAD activation threshold, 0..1
	PrefixPaddingMs   int
	SilenceDurationMs int
	CreateResponse    bool // ask the service to respond after each turn
}

type Config struct {
	Voice             string
	Modality          string // "text", "audio" or "both"
	Temperature       float64
	MaxResponseTokens int
	AudioFormat       string // wire format for outbound audio, e.g. "pcm16"
	SampleRate        int
	Language          string // ISO-639-1, empty for auto-detect
	Instructions      string // system prompt for the companion persona
	TurnDetection     TurnDetection
}

// Partial is a sparse overlay: nil fields are "not set" and leave the
// underlying value untouched.
type Partial struct {
	Voice             *string
	Modality          *string
	Temperature       *float64
	MaxResponseTokens *int
	AudioFormat       *string
	SampleRate        *int
	Language          *string
	Instructions      *string
	VADMode           *string
	VADThreshold      *float64
	PrefixPaddingMs   *int
	SilenceDurationMs *int
	CreateResponse    *bool
}

// Default returns the hardcoded base configuration.
func Default() Config {
	return Config{
		Voice:             "sage",
		Modality:          "both",
		Temperature:       0.8,
		MaxResponseTokens: 4096,
		AudioFormat:       "pcm16",
		SampleRate:        24000,
		Language:          "",
		TurnDetection: TurnDetection{
			Mode:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
			CreateResponse:    true,
		},
	}
}

// Merge returns a copy of c with every set field of p applied.
func (c Config) Merge(p Partial) Config {
	if p.Voice != nil {
		c.Voice = *p.Voice
	}
	if p.Modality != nil {
		c.Modality = *p.Modality
	}
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.MaxResponseTokens != nil {
		c.MaxResponseTokens = *p.MaxResponseTokens
	}
	if p.AudioFormat != nil {
		c.AudioFormat = *p.AudioFormat
	}
	if p.SampleRate != nil {
		c.SampleRate = *p.SampleRate
	}
	if p.Language != nil {
		c.Language = *p.Language
	}
	if p.Instructions != nil {
		c.Instructions = *p.Instructions
	}
	if p.VADMode != nil {
		c.TurnDetection.Mode = *p.VADMode
	}
	if p.VADThreshold != nil {
		c.TurnDetection.Threshold = *p.VADThreshold
	}
	if p.PrefixPaddingMs != nil {
		c.TurnDetection.PrefixPaddingMs = *p.PrefixPaddingMs
	}
	if p.SilenceDurationMs != nil {
		c.TurnDetection.SilenceDurationMs = *p.SilenceDurationMs
	}
	if p.CreateResponse != nil {
		c.TurnDetection.CreateResponse = *p.CreateResponse
	}
	return c
}

// Resolve builds an effective Config from the enumerated precedence order:
// per-companion override, then global setting, then hardcoded default.
// Either overlay may be nil.
func Resolve(override, global *Partial) Config {
	cfg := Default()
	if global != nil {
		cfg = cfg.Merge(*global)
	}
	if override != nil {
		cfg = cfg.Merge(*override)
	}
	return cfg
}
