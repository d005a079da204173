package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
)

var ErrRoomFull = errors.New("room is full")

// SignalClient is a relay connection carrying JSON envelopes.
type SignalClient struct {
	conn     *websocket.Conn
	incoming chan Envelope
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// ChatURL builds the relay endpoint for callID from a ws:// or http:// base.
func ChatURL(server, callID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/" + url.PathEscape(callID)
	return u.String(), nil
}

// Dial connects to the relay. A full call yields ErrRoomFull.
func Dial(ctx context.Context, server, callID string) (*SignalClient, error) {
	target, err := ChatURL(server, callID)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, ErrRoomFull
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	c := &SignalClient{conn: conn, incoming: make(chan Envelope, 32), done: make(chan struct{})}
	go c.readPump()
	log.Debug().Str("module", "peer").Str("url", target).Msg("connected")
	return c, nil
}

func (c *SignalClient) readPump() {
	defer close(c.incoming)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				log.Debug().Err(err).Str("module", "peer").Msg("read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "peer").Int("bytes", len(data)).Msg("skipping malformed envelope")
			continue
		}
		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

// Incoming is closed when the relay connection ends.
func (c *SignalClient) Incoming() <-chan Envelope { return c.incoming }

func (c *SignalClient) Send(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *SignalClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}
