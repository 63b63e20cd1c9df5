package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"log"
	"sync"
	"time"
)

// DefaultFlushInterval is how often buffered audio is flushed as one
// encoded chunk in fallback mode.
const DefaultFlushInterval = 2 * time.Second

// Chunker buffers raw frames and flushes them on a fixed interval as
// discrete WAV-encoded blobs. The buffer is cleared on every flush so
// memory stays bounded regardless of downstream transcription latency.
type Chunker struct {
	sampleRate    int
	channels      int
	flushInterval time.Duration

	mu     sync.Mutex
	buf    []byte
	chunks chan []byte
	wg     sync.WaitGroup
}

func NewChunker(sampleRate, channels int, flushInterval time.Duration) *Chunker {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Chunker{
		sampleRate:    sampleRate,
		channels:      channels,
		flushInterval: flushInterval,
		chunks:        make(chan []byte, 4),
	}
}

// Chunks delivers the encoded blobs. The channel is closed after Run
// returns.
func (ck *Chunker) Chunks() <-chan []byte { return ck.chunks }

// Run consumes frames until the channel closes or ctx is cancelled,
// flushing on the configured interval. Any remaining buffered audio is
// flushed on the way out. Blocks until done; callers usually run it in a
// goroutine.
func (ck *Chunker) Run(ctx context.Context, frames <-chan Frame) {
	ck.wg.Add(1)
	defer func() {
		ck.flush()
		close(ck.chunks)
		ck.wg.Done()
	}()

	ticker := time.NewTicker(ck.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			ck.mu.Lock()
			ck.buf = append(ck.buf, frame.Data...)
			ck.mu.Unlock()
		case <-ticker.C:
			ck.flush()
		}
	}
}

func (ck *Chunker) flush() {
	ck.mu.Lock()
	if len(ck.buf) == 0 {
		ck.mu.Unlock()
		return
	}
	raw := ck.buf
	ck.buf = nil
	ck.mu.Unlock()

	blob := EncodeWAV(raw, ck.sampleRate, ck.channels)
	select {
	case ck.chunks <- blob:
	default:
		// transcription is too far behind; newest audio wins
		select {
		case <-ck.chunks:
		default:
		}
		select {
		case ck.chunks <- blob:
		default:
		}
		log.Printf("capture: chunk queue full, dropped oldest chunk")
	}
}

// EncodeWAV wraps raw 16-bit little-endian PCM in a WAV container.
func EncodeWAV(rawAudio []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	dataSize := len(rawAudio)
	fileSize := 36 + dataSize

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(rawAudio)

	return buf.Bytes()
}
