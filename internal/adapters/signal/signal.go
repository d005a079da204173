package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/callrelay/internal/app/orch"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// ClientTokenKey is the gin context key holding the browser's client token.
const ClientTokenKey = "client_token"

// ClientTokenFreshKey is set when the token was minted for this request,
// i.e. the client sent no session cookie.
const ClientTokenFreshKey = "client_token_fresh"

// Options tunes the per-connection pumps.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  64 * 1024,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
		SendBuffer: 256,
	}
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	Opts Options
	// Origins is consulted for browser connections. Nil allows any origin.
	Origins *cors.Cors
	Limiter *RoomRateLimiter

	ctx      context.Context
	upgrader websocket.Upgrader
}

func NewSignalWSController(ctx context.Context, o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch: o,
		Opts: opts,
		ctx:  ctx,
		upgrader: websocket.Upgrader{
			// Origin is checked before admission, see originAllowed.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// WsSignalConn implements core.SignalConnection on top of a websocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(conn *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: conn, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *SignalWSController) originAllowed(r *http.Request) bool {
	if ctl.Origins == nil || r.Header.Get("Origin") == "" {
		return true
	}
	return ctl.Origins.OriginAllowed(r)
}

// allowConnect charges the attempt to the client token. Clients without a
// session cookie get a new token every time, so they are also charged to
// their IP.
func (ctl *SignalWSController) allowConnect(c *gin.Context, token string) bool {
	if ctl.Limiter == nil {
		return true
	}
	keys := []string{"ct:" + token}
	if c.GetBool(ClientTokenFreshKey) {
		keys = append(keys, "ip:"+c.ClientIP())
	}
	ok := true
	for _, k := range keys {
		if !ctl.Limiter.Allow(k) {
			ok = false
		}
	}
	return ok
}

// upgradeHeader carries cookies set by middleware into the 101 response.
// The upgrader hijacks the connection and ignores the writer's headers.
func upgradeHeader(h http.Header) http.Header {
	cookies := h.Values("Set-Cookie")
	if len(cookies) == 0 {
		return nil
	}
	out := make(http.Header, 1)
	for _, v := range cookies {
		out.Add("Set-Cookie", v)
	}
	return out
}

// HandleSignal admits the connection into the call named by the last
// path segment, upgrades it and starts the pumps. A full call is
// refused with 409 before the upgrade.
func (ctl *SignalWSController) HandleSignal(c *gin.Context) {
	callID, err := domain.CallIDFromPath(c.Request.URL.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade required"})
		return
	}
	if !ctl.originAllowed(c.Request) {
		log.Warn().Str("module", "signal").Str("origin", c.GetHeader("Origin")).Msg("origin rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}
	token := c.GetString(ClientTokenKey)
	if !ctl.allowConnect(c, token) {
		log.Warn().Str("module", "signal").Str("call_id", string(callID)).Str("ip", c.ClientIP()).Msg("connect rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	ticket, err := ctl.Orch.Admit(callID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrRoomFull) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, upgradeHeader(c.Writer.Header()))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("call_id", string(callID)).Msg("ws upgrade")
		ctl.Orch.Abort(ticket)
		return
	}

	conn := newWsSignalConn(ws, ctl.Opts.SendBuffer)
	sid := core.SessionID(uuid.NewString())
	meta := domain.NewPeerMeta(token, c.ClientIP(), c.Request.UserAgent())
	if _, err := ctl.Orch.Activate(ticket, sid, meta, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("activate")
		conn.Close()
		return
	}

	go ctl.writePump(ctl.ctx, sid, conn)
	go ctl.readPump(ticket, conn)
}
