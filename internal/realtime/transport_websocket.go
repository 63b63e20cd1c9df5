package realtime

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/3obby/voicelink/internal/voiceconfig"
)

// websocketTransport streams protocol events over a single websocket. One
// instance serves one negotiation; the coordinator builds a fresh one for
// every attempt.
type websocketTransport struct {
	endpoint string

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan []byte
	closed bool
}

// NewWebsocketTransport returns a factory producing websocket transports
// aimed at endpoint (ws:// or wss://).
func NewWebsocketTransport(endpoint string) TransportFactory {
	return func() Transport {
		return &websocketTransport{
			endpoint: endpoint,
			events:   make(chan []byte, 100),
		}
	}
}

func (t *websocketTransport) Negotiate(ctx context.Context, cred Credential, cfg voiceconfig.Config) error {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cred.Token)

	log.Printf("websocket-transport: connecting to %s", u.String())
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			log.Printf("websocket-transport: dial failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, sessionUpdateMessage(cfg)); err != nil {
		conn.Close()
		return fmt.Errorf("configure session: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

// readLoop drains the connection into the events channel in arrival order
// and closes the channel when the connection drops.
func (t *websocketTransport) readLoop(conn *websocket.Conn) {
	defer close(t.events)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				log.Printf("websocket-transport: read error: %v", err)
			}
			return
		}
		t.events <- message
	}
}

func (t *websocketTransport) Send(msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return fmt.Errorf("no connection")
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (t *websocketTransport) Events() <-chan []byte {
	return t.events
}

func (t *websocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}
