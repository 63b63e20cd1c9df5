package config

import (
	"os"
	"strings"

	"github.com/3obby/voicelink/internal/capture"
	"github.com/3obby/voicelink/internal/transcribe"
	"github.com/3obby/voicelink/internal/voiceconfig"
)

func (c *Config) ToCaptureConstraints() capture.Constraints {
	return capture.Constraints{
		SampleRate:        c.Capture.SampleRate,
		Channels:          c.Capture.Channels,
		Format:            c.Capture.Format,
		BufferSize:        c.Capture.BufferSize,
		Device:            c.Capture.Device,
		ChannelBufferSize: c.Capture.ChannelBufferSize,
		EchoCancellation:  c.Capture.EchoCancellation,
		NoiseSuppression:  c.Capture.NoiseSuppression,
		AutoGain:          c.Capture.AutoGain,
	}
}

func (c *Config) ToAdapterConfig() transcribe.AdapterConfig {
	return transcribe.AdapterConfig{
		APIKey:   c.ResolveAPIKey(c.Transcription.Provider),
		Model:    c.Transcription.Model,
		Language: c.Transcription.Language,
	}
}

// ToVoicePartial converts the [voice] section into the sparse overlay
// applied on top of the built-in voice defaults.
func (c *Config) ToVoicePartial() voiceconfig.Partial {
	v := c.Voice
	return voiceconfig.Partial{
		Voice:             v.Voice,
		Modality:          v.Modality,
		Temperature:       v.Temperature,
		MaxResponseTokens: v.MaxResponseTokens,
		AudioFormat:       v.AudioFormat,
		SampleRate:        v.SampleRate,
		Language:          v.Language,
		Instructions:      v.Instructions,
		VADMode:           v.TurnDetection.Mode,
		VADThreshold:      v.TurnDetection.Threshold,
		PrefixPaddingMs:   v.TurnDetection.PrefixPaddingMs,
		SilenceDurationMs: v.TurnDetection.SilenceDurationMs,
		CreateResponse:    v.TurnDetection.CreateResponse,
	}
}

// ResolveAPIKey returns the API key for a provider, preferring the config
// file over the PROVIDER_API_KEY environment variable.
func (c *Config) ResolveAPIKey(providerName string) string {
	if providerName == "" {
		return ""
	}
	if c.Providers != nil {
		if pc, ok := c.Providers[providerName]; ok && pc.APIKey != "" {
			return pc.APIKey
		}
	}
	return os.Getenv(strings.ToUpper(providerName) + "_API_KEY")
}
