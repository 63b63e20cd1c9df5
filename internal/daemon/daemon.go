// Package daemon is the composition root: it wires the config manager,
// the realtime session coordinator and the batch fallback pipeline, and
// serves the control socket.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/3obby/voicelink/internal/capture"
	"github.com/3obby/voicelink/internal/config"
	"github.com/3obby/voicelink/internal/control"
	"github.com/3obby/voicelink/internal/realtime"
	"github.com/3obby/voicelink/internal/transcribe"
	"github.com/3obby/voicelink/internal/voiceconfig"
)

// sessionController is the slice of the coordinator the daemon drives.
type sessionController interface {
	StartSession(ctx context.Context) error
	StopSession()
	SendText(text string) (bool, error)
	Snapshot() (realtime.Session, bool)
	SubscribeTranscription(fn func(realtime.TranscriptSegment)) func()
	SubscribeResponse(fn func(realtime.ResponseChunk)) func()
	SubscribeStatus(fn func(realtime.StatusEvent)) func()
	Close()
}

type Daemon struct {
	getConfig func() *config.Config
	coord     sessionController
	source    *capture.Source

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	batch *batchSession
	subs  []func()
}

func New(manager *config.Manager) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		getConfig: manager.GetConfig,
		source:    capture.NewSource(),
		ctx:       ctx,
		cancel:    cancel,
	}

	cfg := manager.GetConfig()
	coord := realtime.NewCoordinator(realtime.Options{
		Tokens:               configTokens{getConfig: manager.GetConfig},
		NewTransport:         d.newTransport,
		Mic:                  configMic{getConfig: manager.GetConfig, source: d.source},
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		TokenTimeout:         cfg.Realtime.TokenTimeout,
		NegotiateTimeout:     cfg.Realtime.NegotiateTimeout,
	})
	coord.SetVoiceConfig(cfg.ToVoicePartial())
	d.coord = coord

	// hot reload reaches the next session, never the live one
	manager.OnReload(func(c *config.Config) {
		coord.SetVoiceConfig(c.ToVoicePartial())
	})

	d.subscribeLogging()
	return d
}

func (d *Daemon) subscribeLogging() {
	d.subs = append(d.subs,
		d.coord.SubscribeTranscription(func(seg realtime.TranscriptSegment) {
			if seg.IsFinal {
				log.Printf("daemon: transcript final [%s]: %q", seg.SegmentID, seg.Text)
			}
		}),
		d.coord.SubscribeResponse(func(chunk realtime.ResponseChunk) {
			if chunk.Done {
				log.Printf("daemon: response [%s]: %q", chunk.ResponseID, chunk.Text)
			}
		}),
		d.coord.SubscribeStatus(func(ev realtime.StatusEvent) {
			if ev.Message != "" {
				log.Printf("daemon: connection %s: %s", ev.State, ev.Message)
			} else {
				log.Printf("daemon: connection %s", ev.State)
			}
		}),
	)
}

// newTransport reads the config at call time so a reconnect after a hot
// reload targets the current endpoint.
func (d *Daemon) newTransport() realtime.Transport {
	cfg := d.getConfig()
	if cfg.Realtime.Transport == "webrtc" {
		return realtime.NewWebRTCTransport(cfg.Realtime.Endpoint)()
	}
	return realtime.NewWebsocketTransport(cfg.Realtime.Endpoint)()
}

// configTokens issues credentials against the currently configured token
// endpoint.
type configTokens struct {
	getConfig func() *config.Config
}

func (t configTokens) Issue(ctx context.Context, cfg voiceconfig.Config) (realtime.Credential, error) {
	c := t.getConfig()
	client := realtime.NewTokenClient(c.Realtime.TokenEndpoint, c.ResolveAPIKey("openai"))
	return client.Issue(ctx, cfg)
}

// configMic acquires the microphone with the currently configured
// constraints.
type configMic struct {
	getConfig func() *config.Config
	source    *capture.Source
}

func (m configMic) Acquire(ctx context.Context) (realtime.MicHandle, error) {
	return m.source.Acquire(ctx, m.getConfig().ToCaptureConstraints())
}

func (d *Daemon) Run() error {
	if err := control.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := control.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := control.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer control.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("daemon: received signal %v, shutting down gracefully", sig)
		d.cancel()
	}()

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("daemon: started, listening on socket")

	defer d.shutdown()
	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("daemon: shutdown requested")
				return nil
			}
			log.Printf("daemon: accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) shutdown() {
	d.end()
	for _, unsub := range d.subs {
		unsub()
	}
	d.coord.Close()
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("daemon: client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	fmt.Fprint(c, d.dispatch(line))
}

// dispatch executes one control command and returns the reply line.
func (d *Daemon) dispatch(line string) string {
	cmd, arg := control.ParseCommand(line)

	switch cmd {
	case control.CmdBegin:
		if err := d.begin(); err != nil {
			return fmt.Sprintf("ERR begin: %v\n", err)
		}
		return "OK session starting\n"
	case control.CmdEnd:
		d.end()
		return "OK session stopped\n"
	case control.CmdStatus:
		return fmt.Sprintf("STATUS status=%s\n", d.status())
	case control.CmdSay:
		if arg == "" {
			return "ERR say: empty text\n"
		}
		ok, err := d.coord.SendText(arg)
		if err != nil {
			return fmt.Sprintf("ERR say: %v\n", err)
		}
		if !ok {
			return "ERR say: no streaming session\n"
		}
		return "OK sent\n"
	case control.CmdVersion:
		return fmt.Sprintf("STATUS proto=%s\n", control.ProtoVer)
	case control.CmdQuit:
		d.cancel()
		return "OK quitting\n"
	default:
		log.Printf("daemon: unknown command: %q", cmd)
		return fmt.Sprintf("ERR unknown=%q\n", cmd)
	}
}

func (d *Daemon) begin() error {
	cfg := d.getConfig()
	if cfg.General.Mode == "batch" {
		return d.startBatch(cfg)
	}
	return d.coord.StartSession(d.ctx)
}

func (d *Daemon) end() {
	d.coord.StopSession()
	d.stopBatch()
}

func (d *Daemon) status() string {
	d.mu.Lock()
	batchRunning := d.batch != nil
	d.mu.Unlock()
	if batchRunning {
		return "recording"
	}
	s, ok := d.coord.Snapshot()
	if !ok {
		return string(realtime.StatusIdle)
	}
	return string(s.Status)
}

// batchSession is the chunked fallback pipeline: capture, interval
// flushing, serialized transcription.
type batchSession struct {
	cancel context.CancelFunc
	handle *capture.Handle
	client *transcribe.Client
	unsub  func()
	wg     sync.WaitGroup
}

func (d *Daemon) startBatch(cfg *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batch != nil {
		return fmt.Errorf("batch session already running")
	}

	cons := cfg.ToCaptureConstraints()
	handle, err := d.source.Acquire(d.ctx, cons)
	if err != nil {
		return err
	}

	bctx, cancel := context.WithCancel(d.ctx)
	client := transcribe.NewClient(transcribe.NewOpenAIAdapter(cfg.ToAdapterConfig()), func(err error) {
		log.Printf("daemon: batch transcription error: %v", err)
	})
	unsub := client.SubscribeResults(func(r transcribe.Result) {
		log.Printf("daemon: transcript (batch, %v): %q", r.Duration, r.Text)
	})

	chunker := capture.NewChunker(cons.SampleRate, cons.Channels, cfg.Transcription.ChunkInterval)
	b := &batchSession{cancel: cancel, handle: handle, client: client, unsub: unsub}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		chunker.Run(bctx, handle.Frames())
	}()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for chunk := range chunker.Chunks() {
			client.Enqueue(bctx, chunk)
		}
	}()

	d.batch = b
	log.Printf("daemon: batch session started (chunk interval %v)", cfg.Transcription.ChunkInterval)
	return nil
}

func (d *Daemon) stopBatch() {
	d.mu.Lock()
	b := d.batch
	d.batch = nil
	d.mu.Unlock()
	if b == nil {
		return
	}

	b.handle.Release()
	b.cancel()
	b.wg.Wait()
	b.unsub()
	b.client.Close()
	log.Printf("daemon: batch session stopped")
}
