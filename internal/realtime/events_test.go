package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// recorder collects published values from a bus subscription.
type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// decodeFixture is a coordinator with a synthetic streaming session so
// handleEvent can be exercised directly.
func decodeFixture(t *testing.T) (*Coordinator, *liveSession) {
	t.Helper()
	c := NewCoordinator(Options{
		Tokens:       &fakeTokens{},
		NewTransport: func() Transport { return newFakeTransport(nil) },
		Mic:          &fakeMicSource{},
	})
	s := &liveSession{
		id:     "sess-decode",
		status: StatusStreaming,
		decode: newDecodeState(),
	}
	c.sess = s
	return c, s
}

func TestHandleEvent_TranscriptionDeltaAccumulates(t *testing.T) {
	c, s := decodeFixture(t)
	var rec recorder[TranscriptSegment]
	defer c.SubscribeTranscription(rec.add)()

	for _, delta := range []string{"Hel", "lo", " world"} {
		raw := fmt.Sprintf(`{"type":"conversation.item.input_audio_transcription.delta","item_id":"item-1","delta":%q}`, delta)
		if err := c.handleEvent(s, []byte(raw)); err != nil {
			t.Fatalf("handleEvent: %v", err)
		}
	}

	waitFor(t, "three interim segments", func() bool { return len(rec.snapshot()) == 3 })
	got := rec.snapshot()
	want := []string{"Hel", "Hello", "Hello world"}
	for i, seg := range got {
		if seg.Text != want[i] {
			t.Errorf("segment %d: got %q, want %q", i, seg.Text, want[i])
		}
		if seg.IsFinal {
			t.Errorf("segment %d: unexpected final", i)
		}
		if seg.SegmentID != "item-1" {
			t.Errorf("segment %d: id %q", i, seg.SegmentID)
		}
	}
}

func TestHandleEvent_CompletedClosesSegment(t *testing.T) {
	c, s := decodeFixture(t)
	var rec recorder[TranscriptSegment]
	defer c.SubscribeTranscription(rec.add)()

	events := []string{
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"item-1","delta":"hi"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"item-1","transcript":"hi there","language":"en","words":[{"word":"hi","start_ms":0,"end_ms":200},{"word":"there","start_ms":250,"end_ms":600}]}`,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"item-1","delta":"late"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"item-1","transcript":"dup"}`,
	}
	for _, raw := range events {
		if err := c.handleEvent(s, []byte(raw)); err != nil {
			t.Fatalf("handleEvent: %v", err)
		}
	}

	waitFor(t, "interim plus final", func() bool { return len(rec.snapshot()) == 2 })
	time.Sleep(20 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
	final := got[1]
	if !final.IsFinal || final.Text != "hi there" {
		t.Errorf("final segment: %+v", final)
	}
	if final.Language != "en" {
		t.Errorf("language: %q", final.Language)
	}
	if len(final.Words) != 2 || final.Words[1].Word != "there" || final.Words[1].EndMs != 600 {
		t.Errorf("words: %+v", final.Words)
	}
}

func TestHandleEvent_ResponseDeltasAndDone(t *testing.T) {
	c, s := decodeFixture(t)
	var rec recorder[ResponseChunk]
	defer c.SubscribeResponse(rec.add)()

	events := []string{
		`{"type":"response.text.delta","response_id":"resp-1","delta":"Sure"}`,
		`{"type":"response.text.delta","response_id":"resp-1","delta":", I can"}`,
		`{"type":"response.text.done","response_id":"resp-1","text":"Sure, I can help."}`,
		`{"type":"response.text.delta","response_id":"resp-1","delta":"stray"}`,
		`{"type":"response.text.done","response_id":"resp-1","text":"dup"}`,
	}
	for _, raw := range events {
		if err := c.handleEvent(s, []byte(raw)); err != nil {
			t.Fatalf("handleEvent: %v", err)
		}
	}

	waitFor(t, "two deltas and done", func() bool { return len(rec.snapshot()) == 3 })
	time.Sleep(20 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if got[0].Text != "Sure" || got[0].Done {
		t.Errorf("chunk 0: %+v", got[0])
	}
	if got[1].Text != "Sure, I can" || got[1].Done {
		t.Errorf("chunk 1: %+v", got[1])
	}
	if got[2].Text != "Sure, I can help." || !got[2].Done {
		t.Errorf("chunk 2: %+v", got[2])
	}
}

func TestHandleEvent_InterleavedResponses(t *testing.T) {
	c, s := decodeFixture(t)
	var rec recorder[ResponseChunk]
	defer c.SubscribeResponse(rec.add)()

	events := []string{
		`{"type":"response.text.delta","response_id":"a","delta":"A1"}`,
		`{"type":"response.text.delta","response_id":"b","delta":"B1"}`,
		`{"type":"response.text.delta","response_id":"a","delta":"A2"}`,
	}
	for _, raw := range events {
		if err := c.handleEvent(s, []byte(raw)); err != nil {
			t.Fatalf("handleEvent: %v", err)
		}
	}

	waitFor(t, "three chunks", func() bool { return len(rec.snapshot()) == 3 })
	got := rec.snapshot()
	if got[0].Text != "A1" || got[1].Text != "B1" || got[2].Text != "A1A2" {
		t.Errorf("interleaved accumulation wrong: %+v", got)
	}
}

func TestHandleEvent_AudioDeltaForwardedToSink(t *testing.T) {
	c, s := decodeFixture(t)

	var mu sync.Mutex
	var pcm []byte
	c.SetAudioSink(func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		pcm = append(pcm, b...)
	})

	// "audio" is base64 of "pcm-bytes"
	raw := `{"type":"response.audio.delta","response_id":"resp-1","audio":"cGNtLWJ5dGVz"}`
	if err := c.handleEvent(s, []byte(raw)); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(pcm) != "pcm-bytes" {
		t.Errorf("sink received %q", pcm)
	}
}

func TestHandleEvent_ServerErrorIsTerminal(t *testing.T) {
	c, s := decodeFixture(t)
	raw := `{"type":"error","error":{"code":"session_expired","message":"token expired"}}`
	err := c.handleEvent(s, []byte(raw))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "server error: session_expired: token expired" {
		t.Errorf("error text: %q", got)
	}
}

func TestHandleEvent_MalformedAndUnknownIgnored(t *testing.T) {
	c, s := decodeFixture(t)
	var rec recorder[TranscriptSegment]
	defer c.SubscribeTranscription(rec.add)()

	for _, raw := range []string{
		`{not json`,
		`{"type":"some.future.event","delta":"x"}`,
		`{"type":"rate_limits.updated"}`,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"","delta":"x"}`,
	} {
		if err := c.handleEvent(s, []byte(raw)); err != nil {
			t.Fatalf("handleEvent(%s): %v", raw, err)
		}
	}

	time.Sleep(30 * time.Millisecond)
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("expected no segments, got %d", n)
	}
}
