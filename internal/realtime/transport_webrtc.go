package realtime

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/3obby/voicelink/internal/voiceconfig"
)

// webrtcTransport negotiates a peer connection via SDP offer/answer over
// HTTP and carries protocol events on a data channel named "events".
// Microphone audio travels as base64 append messages on the same channel;
// the companion's returned audio arrives as protocol events, so the media
// tracks stay recvonly and are never decoded here.
type webrtcTransport struct {
	signalURL string

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	events chan []byte
	closed bool
}

// NewWebRTCTransport returns a factory producing WebRTC transports that
// exchange SDP with signalURL.
func NewWebRTCTransport(signalURL string) TransportFactory {
	return func() Transport {
		return &webrtcTransport{
			signalURL: signalURL,
			events:    make(chan []byte, 100),
		}
	}
}

func (t *webrtcTransport) Negotiate(ctx context.Context, cred Credential, cfg voiceconfig.Config) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel("events", nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create data channel: %w", err)
	}

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		select {
		case t.events <- msg.Data:
		default:
			log.Printf("webrtc-transport: event buffer full, dropping message")
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("webrtc-transport: connection state %s", state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			t.closeEvents()
		}
	})

	// receive-only audio keeps the answer symmetric even though playback
	// audio arrives on the data channel
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}

	answer, err := t.exchangeSDP(ctx, cred, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("set remote description: %w", err)
	}

	select {
	case <-opened:
	case <-ctx.Done():
		pc.Close()
		return fmt.Errorf("data channel open: %w", ctx.Err())
	}

	if err := dc.SendText(string(sessionUpdateMessage(cfg))); err != nil {
		pc.Close()
		return fmt.Errorf("configure session: %w", err)
	}

	t.mu.Lock()
	t.pc = pc
	t.dc = dc
	t.mu.Unlock()

	log.Printf("webrtc-transport: negotiated")
	return nil
}

// exchangeSDP posts the local offer and returns the remote answer SDP.
func (t *webrtcTransport) exchangeSDP(ctx context.Context, cred Credential, offer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.signalURL, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("build sdp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sdp exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read sdp answer: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sdp exchange failed (%d): %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}

func (t *webrtcTransport) Send(msg []byte) error {
	t.mu.Lock()
	dc := t.dc
	closed := t.closed
	t.mu.Unlock()
	if dc == nil || closed {
		return fmt.Errorf("no connection")
	}
	if err := dc.SendText(string(msg)); err != nil {
		return fmt.Errorf("data channel send: %w", err)
	}
	return nil
}

func (t *webrtcTransport) Events() <-chan []byte {
	return t.events
}

func (t *webrtcTransport) closeEvents() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
}

func (t *webrtcTransport) Close() error {
	t.closeEvents()
	t.mu.Lock()
	pc := t.pc
	t.pc = nil
	t.dc = nil
	t.mu.Unlock()
	if pc != nil {
		return pc.Close()
	}
	return nil
}
