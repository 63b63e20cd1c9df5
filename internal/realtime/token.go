package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/3obby/voicelink/internal/voiceconfig"
)

// Credential is a short-lived bearer token used to negotiate the streaming
// connection.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer obtains a session credential parameterized by the voice
// configuration.
type TokenIssuer interface {
	Issue(ctx context.Context, cfg voiceconfig.Config) (Credential, error)
}

// TokenClient implements TokenIssuer against the external token-issuing
// endpoint.
type TokenClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewTokenClient(endpoint, apiKey string) *TokenClient {
	return &TokenClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Issue requests a credential. Non-2xx responses become *CredentialError
// with the server-provided body surfaced verbatim.
func (t *TokenClient) Issue(ctx context.Context, cfg voiceconfig.Config) (Credential, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return Credential{}, fmt.Errorf("parse token endpoint: %w", err)
	}

	q := u.Query()
	q.Set("voice", cfg.Voice)
	q.Set("modality", cfg.Modality)
	q.Set("vad_mode", cfg.TurnDetection.Mode)
	q.Set("vad_threshold", strconv.FormatFloat(cfg.TurnDetection.Threshold, 'f', -1, 64))
	q.Set("prefix_padding_ms", strconv.Itoa(cfg.TurnDetection.PrefixPaddingMs))
	q.Set("silence_duration_ms", strconv.Itoa(cfg.TurnDetection.SilenceDurationMs))
	q.Set("temperature", strconv.FormatFloat(cfg.Temperature, 'f', -1, 64))
	q.Set("max_response_tokens", strconv.Itoa(cfg.MaxResponseTokens))
	q.Set("audio_format", cfg.AudioFormat)
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Credential{}, fmt.Errorf("build token request: %w", err)
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Credential{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credential{}, &CredentialError{StatusCode: resp.StatusCode, Detail: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.Token == "" {
		return Credential{}, &CredentialError{StatusCode: resp.StatusCode, Detail: "empty token in response"}
	}

	return Credential{
		Token:     tr.Token,
		ExpiresAt: time.Unix(tr.ExpiresAt, 0),
	}, nil
}
