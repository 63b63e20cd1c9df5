package config

import "fmt"

func (c *Config) Validate() error {
	validModes := map[string]bool{"realtime": true, "batch": true}
	if !validModes[c.General.Mode] {
		return fmt.Errorf("invalid general.mode: %s (must be realtime or batch)", c.General.Mode)
	}

	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("invalid capture.sample_rate: %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels <= 0 {
		return fmt.Errorf("invalid capture.channels: %d", c.Capture.Channels)
	}
	if c.Capture.BufferSize <= 0 {
		return fmt.Errorf("invalid capture.buffer_size: %d", c.Capture.BufferSize)
	}
	if c.Capture.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid capture.channel_buffer_size: %d", c.Capture.ChannelBufferSize)
	}
	if c.Capture.Format == "" {
		return fmt.Errorf("invalid capture.format: empty")
	}

	switch c.General.Mode {
	case "batch":
		if c.Transcription.Provider != "openai" {
			return fmt.Errorf("unsupported transcription.provider: %s (must be openai)", c.Transcription.Provider)
		}
		if c.Transcription.Model == "" {
			return fmt.Errorf("invalid transcription.model: empty")
		}
		if c.Transcription.ChunkInterval <= 0 {
			return fmt.Errorf("invalid transcription.chunk_interval: %v", c.Transcription.ChunkInterval)
		}
		if c.Transcription.Language != "" && !isValidLanguageCode(c.Transcription.Language) {
			return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'en', 'es', 'fr')", c.Transcription.Language)
		}
		apiKey := c.ResolveAPIKey(c.Transcription.Provider)
		if apiKey == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (providers.openai.api_key) or environment variable (OPENAI_API_KEY)")
		}

	case "realtime":
		if c.Realtime.TokenEndpoint == "" {
			return fmt.Errorf("invalid realtime.token_endpoint: empty")
		}
		if c.Realtime.Endpoint == "" {
			return fmt.Errorf("invalid realtime.endpoint: empty")
		}
		validTransports := map[string]bool{"websocket": true, "webrtc": true}
		if !validTransports[c.Realtime.Transport] {
			return fmt.Errorf("invalid realtime.transport: %s (must be websocket or webrtc)", c.Realtime.Transport)
		}
		if c.Realtime.TokenTimeout <= 0 {
			return fmt.Errorf("invalid realtime.token_timeout: %v", c.Realtime.TokenTimeout)
		}
		if c.Realtime.NegotiateTimeout <= 0 {
			return fmt.Errorf("invalid realtime.negotiate_timeout: %v", c.Realtime.NegotiateTimeout)
		}
		if c.Realtime.MaxReconnectAttempts <= 0 {
			return fmt.Errorf("invalid realtime.max_reconnect_attempts: %d", c.Realtime.MaxReconnectAttempts)
		}
	}

	if c.Voice.Modality != nil {
		validModalities := map[string]bool{"text": true, "audio": true, "both": true}
		if !validModalities[*c.Voice.Modality] {
			return fmt.Errorf("invalid voice.modality: %s (must be text, audio, or both)", *c.Voice.Modality)
		}
	}
	if c.Voice.Temperature != nil && (*c.Voice.Temperature < 0 || *c.Voice.Temperature > 2) {
		return fmt.Errorf("invalid voice.temperature: %v (must be between 0 and 2)", *c.Voice.Temperature)
	}
	if c.Voice.Language != nil && *c.Voice.Language != "" && !isValidLanguageCode(*c.Voice.Language) {
		return fmt.Errorf("invalid voice.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'en', 'es', 'fr')", *c.Voice.Language)
	}
	if td := c.Voice.TurnDetection; td.Mode != nil {
		validVAD := map[string]bool{"server_vad": true, "semantic_vad": true, "none": true}
		if !validVAD[*td.Mode] {
			return fmt.Errorf("invalid voice.turn_detection.mode: %s (must be server_vad, semantic_vad, or none)", *td.Mode)
		}
	}
	if td := c.Voice.TurnDetection; td.Threshold != nil && (*td.Threshold < 0 || *td.Threshold > 1) {
		return fmt.Errorf("invalid voice.turn_detection.threshold: %v (must be between 0 and 1)", *td.Threshold)
	}

	return nil
}

func isValidLanguageCode(code string) bool {
	validCodes := map[string]bool{
		"en": true, "es": true, "fr": true, "de": true, "it": true, "pt": true,
		"ru": true, "ja": true, "ko": true, "zh": true, "ar": true, "hi": true,
		"nl": true, "sv": true, "da": true, "no": true, "fi": true, "pl": true,
		"tr": true, "he": true, "th": true, "vi": true, "id": true, "ms": true,
		"uk": true, "cs": true, "hu": true, "ro": true, "bg": true, "hr": true,
		"sk": true, "sl": true, "et": true, "lv": true, "lt": true, "mt": true,
		"cy": true, "ga": true, "eu": true, "ca": true, "gl": true, "is": true,
		"mk": true, "sq": true, "az": true, "be": true, "ka": true, "hy": true,
		"kk": true, "ky": true, "tg": true, "uz": true, "mn": true, "ne": true,
		"si": true, "km": true, "lo": true, "my": true, "fa": true, "ps": true,
		"ur": true, "bn": true, "ta": true, "te": true, "ml": true, "kn": true,
		"gu": true, "pa": true, "or": true, "as": true, "mr": true, "sa": true,
		"sw": true, "yo": true, "ig": true, "ha": true, "zu": true, "xh": true,
		"af": true, "am": true, "mg": true, "so": true, "sn": true, "rw": true,
	}
	return validCodes[code]
}
