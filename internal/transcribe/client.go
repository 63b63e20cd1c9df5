// Package transcribe implements the batch speech-to-text fallback path:
// encoded audio chunks are posted to a remote transcription endpoint, one
// request in flight at a time, preserving chronological order of results.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/3obby/voicelink/internal/pubsub"
)

// Result is one transcription produced from a single audio chunk.
type Result struct {
	Text     string
	Duration time.Duration
	Language string
	Segments []Segment
	Words    []Word
}

type Segment struct {
	Text    string
	StartMs int
	EndMs   int
}

type Word struct {
	Word    string
	StartMs int
	EndMs   int
}

// RemoteError is a non-2xx response from the transcription endpoint.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("transcription endpoint returned %d: %s", e.StatusCode, e.Body)
}

// TransportError is a network-level failure before any response arrived.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transcription transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// BatchTranscriber posts one encoded audio blob and returns its
// transcription. No retry is performed here: retrying stale audio after a
// long delay is not useful, so retry policy belongs to the caller.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, audioBlob []byte) (Result, error)
}

// OpenAIAdapter implements BatchTranscriber against an OpenAI-compatible
// audio transcription endpoint.
type OpenAIAdapter struct {
	client   *openai.Client
	model    string
	language string
}

type AdapterConfig struct {
	APIKey   string
	BaseURL  string // empty for the default endpoint
	Model    string
	Language string
}

func NewOpenAIAdapter(cfg AdapterConfig) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIAdapter{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		language: cfg.Language,
	}
}

func (a *OpenAIAdapter) Transcribe(ctx context.Context, audioBlob []byte) (Result, error) {
	if len(audioBlob) == 0 {
		return Result{}, nil
	}

	req := openai.AudioRequest{
		Model:    a.model,
		Reader:   bytes.NewReader(audioBlob),
		FilePath: "chunk.wav",
		Language: a.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, classifyError(err)
	}

	log.Printf("transcribe: %d bytes transcribed in %v: %q", len(audioBlob), elapsed, resp.Text)
	return resultFromResponse(resp), nil
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &RemoteError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &RemoteError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return &TransportError{Err: err}
}

func resultFromResponse(resp openai.AudioResponse) Result {
	r := Result{
		Text:     resp.Text,
		Duration: time.Duration(resp.Duration * float64(time.Second)),
		Language: resp.Language,
	}
	for _, s := range resp.Segments {
		r.Segments = append(r.Segments, Segment{
			Text:    s.Text,
			StartMs: int(s.Start * 1000),
			EndMs:   int(s.End * 1000),
		})
	}
	for _, w := range resp.Words {
		r.Words = append(r.Words, Word{
			Word:    w.Word,
			StartMs: int(w.Start * 1000),
			EndMs:   int(w.End * 1000),
		})
	}
	return r
}

// Client serializes chunk transcription: at most one in-flight request,
// later chunks queued FIFO so transcript order matches capture order.
// Results fan out on a bus; errors are delivered to the optional error
// callback.
type Client struct {
	adapter BatchTranscriber
	results *pubsub.Bus[Result]
	onError func(error)

	mu       sync.Mutex
	queue    [][]byte
	inflight bool
	wg       sync.WaitGroup
}

func NewClient(adapter BatchTranscriber, onError func(error)) *Client {
	if onError == nil {
		onError = func(err error) { log.Printf("transcribe: %v", err) }
	}
	return &Client{
		adapter: adapter,
		results: pubsub.New[Result](),
		onError: onError,
	}
}

// SubscribeResults registers a consumer for transcription results and
// returns its disposer.
func (c *Client) SubscribeResults(fn func(Result)) func() {
	return c.results.Subscribe(fn)
}

// Enqueue schedules one encoded chunk for transcription. If a request is
// already in flight the chunk is queued, not dropped.
func (c *Client) Enqueue(ctx context.Context, audioBlob []byte) {
	if len(audioBlob) == 0 {
		return
	}

	c.mu.Lock()
	c.queue = append(c.queue, audioBlob)
	if c.inflight {
		c.mu.Unlock()
		return
	}
	c.inflight = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.drain(ctx)
}

func (c *Client) drain(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 || ctx.Err() != nil {
			c.queue = nil
			c.inflight = false
			c.mu.Unlock()
			return
		}
		blob := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		result, err := c.adapter.Transcribe(ctx, blob)
		if err != nil {
			c.onError(err)
			continue
		}
		if result.Text != "" {
			c.results.Publish(result)
		}
	}
}

// Close waits for any in-flight work and shuts down the result bus.
func (c *Client) Close() {
	c.wg.Wait()
	c.results.Close()
}
