package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/app/orch"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// Controller terminates WebSocket connections and translates wire
// events into orchestrator calls. One inbound dispatch path per
// connection; no handler captures mutable state outside clientConn.
type Controller struct {
	Orch      *orch.Orchestrator
	WS        config.WebSocketConfig
	JWTSecret string

	validate *validator.Validate
	limiter  *RateLimiter
}

func NewController(o *orch.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{
		Orch:      o,
		WS:        cfg.WS,
		JWTSecret: cfg.JWTSecret,
		validate:  validator.New(),
		limiter:   NewRateLimiter(cfg.SignalRateLimit, cfg.SignalRateInterval),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
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

// CloseWithReason sends a close control frame carrying the reason, so
// the peer can tell a supersession apart from a network drop.
func (c *wsConn) CloseWithReason(reason string) {
	c.mu.RLock()
	if !c.closed {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			closeDeadline(),
		)
	}
	c.mu.RUnlock()
	c.Close()
}

// clientConn is the per-connection state the dispatch path operates on.
// uid/sid are set exactly once, by a successful auth handshake.
type clientConn struct {
	conn   *wsConn
	cancel context.CancelFunc

	mu     sync.RWMutex
	authed bool
	sid    core.SessionID
	uid    domain.UserID
}

func (cc *clientConn) bind(sid core.SessionID, uid domain.UserID) {
	cc.mu.Lock()
	cc.authed = true
	cc.sid = sid
	cc.uid = uid
	cc.mu.Unlock()
}

func (cc *clientConn) identity() (core.SessionID, domain.UserID, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.sid, cc.uid, cc.authed
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the connection and starts the pumps. The session
// is not registered until the auth handshake succeeds.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	cc := &clientConn{
		conn: &wsConn{
			conn: ws,
			send: make(chan core.Frame, ctl.WS.SendBuffer),
		},
		cancel: cancel,
	}

	go ctl.writePump(ctx, cc.conn)
	go ctl.readPump(ctx, cc)
}
