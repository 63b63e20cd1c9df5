package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// pipewireBackend captures audio by running pw-record and reading raw PCM
// from its stdout.
type pipewireBackend struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPipewireBackend() *pipewireBackend { return &pipewireBackend{} }

func (b *pipewireBackend) Start(ctx context.Context, c Constraints) (<-chan Frame, <-chan error, error) {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return nil, nil, fmt.Errorf("%w: pw-record not found (install pipewire-tools)", ErrDeviceUnavailable)
	}

	checkCtx, checkCancel := context.WithTimeout(ctx, 2*time.Second)
	defer checkCancel()
	if out, err := exec.CommandContext(checkCtx, "pw-cli", "info").CombinedOutput(); err != nil {
		if strings.Contains(strings.ToLower(string(out)), "permission") {
			return nil, nil, fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(string(out)))
		}
		return nil, nil, fmt.Errorf("%w: PipeWire not running: %v", ErrDeviceUnavailable, err)
	}

	captureCtx, cancel := context.WithCancel(ctx)
	frameCh := make(chan Frame, c.ChannelBufferSize)
	errCh := make(chan error, 1)

	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.captureLoop(captureCtx, c, frameCh, errCh)

	return frameCh, errCh, nil
}

func (b *pipewireBackend) Stop() error {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	return nil
}

func (b *pipewireBackend) captureLoop(ctx context.Context, c Constraints, frameCh chan<- Frame, errCh chan<- error) {
	defer func() {
		close(frameCh)
		close(errCh)

		b.mu.Lock()
		if b.cmd != nil {
			_ = b.cmd.Wait()
			b.cmd = nil
		}
		b.mu.Unlock()

		b.wg.Done()
	}()

	cmd := exec.CommandContext(ctx, "pw-record", buildPwRecordArgs(c)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		return
	}

	b.mu.Lock()
	b.cmd = cmd
	b.mu.Unlock()

	if err := cmd.Start(); err != nil {
		emitErr(errCh, fmt.Errorf("start pw-record: %w", err))
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Printf("capture: pw-record: %s", scanner.Text())
		}
	}()

	buffer := make([]byte, c.BufferSize)
	var droppedCount int
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			frameData := make([]byte, n)
			copy(frameData, buffer[:n])

			select {
			case frameCh <- Frame{Data: frameData, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			default:
				droppedCount++
				if time.Since(lastDropLog) > time.Second {
					log.Printf("capture: dropped %d frames due to backpressure", droppedCount)
					lastDropLog = time.Now()
					droppedCount = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return
			}
			emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// buildPwRecordArgs maps constraints onto pw-record flags. When echo
// cancellation is requested and no explicit device is configured, the
// stream targets the PipeWire echo-cancel source, which also applies
// noise suppression and gain control when the module is loaded.
func buildPwRecordArgs(c Constraints) []string {
	args := []string{
		"--format", c.Format,
		"--rate", strconv.Itoa(c.SampleRate),
		"--channels", strconv.Itoa(c.Channels),
	}
	switch {
	case c.Device != "":
		args = append(args, "--target", c.Device)
	case c.EchoCancellation:
		args = append(args, "--target", "echo-cancel-source")
	}
	args = append(args, "-") // stdout
	return args
}

func emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	log.Printf("capture: %v", err)
}
