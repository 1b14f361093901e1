package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/app"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

type Credentials struct {
	UserID   string
	Username string
	Token    string
}

type Options struct {
	URL         string
	Credentials Credentials

	Backoff          Backoff
	HandshakeTimeout time.Duration
	RoomCap          int

	Cache *OfflineCache

	// OnEvent receives every server event except ones the manager fully
	// absorbs (authResult during handshake, own-echo suppression).
	OnEvent func(eventType string, data []byte)
	// OnStateChange observes connection state reactively; transport
	// errors never bubble to application logic.
	OnStateChange func(ConnState)
}

// ConnectionManager owns the transport connection, the auth handshake
// and the reconnection policy. On transport loss it keeps in-memory
// room state and retries with bounded exponential backoff; state is
// cleared only when the attempt budget is spent.
type ConnectionManager struct {
	opts   Options
	dialer *websocket.Dialer
	dedup  *app.Deduplicator

	mu         sync.Mutex
	writeMu    sync.Mutex
	state      ConnState
	conn       *websocket.Conn
	cancel     context.CancelFunc
	roomID     string
	sessionID  string
	superseded bool
	lastErr    error
}

func NewConnectionManager(opts Options) *ConnectionManager {
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.RoomCap == 0 {
		opts.RoomCap = DefaultRoomCap
	}
	return &ConnectionManager{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		dedup:  app.NewDeduplicator(5*time.Second, 512),
	}
}

// Connect performs the initial dial and auth handshake. Auth failure is
// fatal and never retried. On success the manager maintains the
// connection in the background until Logout or a spent retry budget.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.superseded = false
	m.lastErr = nil
	m.mu.Unlock()

	if err := m.dialAndAuth(ctx); err != nil {
		cancel()
		m.setState(StateDisconnected)
		return err
	}
	go m.run(ctx)
	return nil
}

// Logout tears the connection down and cancels any pending reconnect
// attempt immediately.
func (m *ConnectionManager) Logout() {
	m.mu.Lock()
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
	m.setState(StateDisconnected)
}

func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the terminal error after the manager gave up, if any.
func (m *ConnectionManager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *ConnectionManager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// JoinRoom switches the active room and records it as the resume target.
func (m *ConnectionManager) JoinRoom(roomID string) error {
	meta := RoomMeta{RoomID: roomID}
	if m.opts.Cache != nil {
		meta = m.opts.Cache.Meta(roomID)
		if err := m.opts.Cache.SetCurrentRoom(roomID); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("failed to persist current room")
		}
	}
	m.mu.Lock()
	m.roomID = roomID
	m.mu.Unlock()
	return m.Send(core.JoinRoomPayload{Type: core.EventJoinRoom, RoomID: roomID, LastID: meta.LastID})
}

// SendPublicMessage publishes to the active room. The generated nonce
// is registered with the local deduplicator so the server echo does not
// re-render an optimistically shown message.
func (m *ConnectionManager) SendPublicMessage(content, messageType string) (string, error) {
	nonce := uuid.NewString()
	m.mu.Lock()
	roomID := m.roomID
	m.mu.Unlock()
	m.dedup.ShouldAccept(domain.UserID(m.opts.Credentials.UserID), domain.RoomID(roomID), nonce)
	err := m.Send(core.PublicMessagePayload{
		Type:        core.EventPublicMessage,
		Content:     content,
		MessageType: messageType,
		ClientNonce: nonce,
	})
	return nonce, err
}

func (m *ConnectionManager) SendPrivateMessage(receiverID, content, messageType string) error {
	return m.Send(core.PrivateMessagePayload{
		Type:        core.EventPrivateMessage,
		ReceiverID:  receiverID,
		Content:     content,
		MessageType: messageType,
	})
}

func (m *ConnectionManager) SendTyping(isTyping bool) error {
	return m.Send(core.TypingPayload{Type: core.EventTyping, IsTyping: isTyping})
}

// Send marshals and writes a single frame. Writes are serialized.
func (m *ConnectionManager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()
	if conn == nil || state != StateConnected {
		return core.ErrConnectionClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *ConnectionManager) setState(s ConnState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	cb := m.opts.OnStateChange
	m.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

func (m *ConnectionManager) dialAndAuth(ctx context.Context) error {
	m.setState(StateConnecting)
	conn, _, err := m.dialer.DialContext(ctx, m.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	m.setState(StateAuthenticating)
	auth := core.AuthPayload{
		Type:     core.EventAuth,
		UserID:   m.opts.Credentials.UserID,
		Username: m.opts.Credentials.Username,
		Token:    m.opts.Credentials.Token,
	}
	data, _ := json.Marshal(auth)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = conn.Close()
		return fmt.Errorf("auth write failed: %w", err)
	}

	// The handshake is bounded; after the deadline the attempt is
	// abandoned and the next backoff step begins.
	_ = conn.SetReadDeadline(time.Now().Add(m.opts.HandshakeTimeout))
	var result core.AuthResultEvent
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("auth read failed: %w", err)
		}
		var env core.Envelope
		if json.Unmarshal(frame, &env) != nil || env.Type != core.EventAuthResult {
			continue
		}
		if err := json.Unmarshal(frame, &result); err != nil {
			_ = conn.Close()
			return fmt.Errorf("bad auth result: %w", err)
		}
		break
	}
	if !result.Success {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", core.ErrAuthFailed, result.Message)
	}
	_ = conn.SetReadDeadline(time.Time{})

	m.mu.Lock()
	m.conn = conn
	m.sessionID = result.SessionID
	roomID := m.roomID
	m.mu.Unlock()
	m.setState(StateConnected)

	// Re-send the resume cursor so the server replays the presence join
	// and the message delta.
	if roomID == "" && m.opts.Cache != nil {
		roomID = m.opts.Cache.CurrentRoom()
	}
	if roomID != "" {
		if err := m.JoinRoom(roomID); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("resume join failed")
		}
	}
	return nil
}

func (m *ConnectionManager) run(ctx context.Context) {
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			if isSupersededClose(err) {
				// The JSON event may not flush before the server tears the
				// socket down, so the close reason is the reliable signal.
				m.mu.Lock()
				m.superseded = true
				m.lastErr = nil
				m.mu.Unlock()
			}
			if ctx.Err() != nil || m.isSuperseded() {
				m.setState(StateDisconnected)
				return
			}
			if !m.reconnect(ctx) {
				return
			}
			continue
		}
		m.handleFrame(data)
	}
}

// reconnect walks the backoff schedule. Reports false when the manager
// reached a terminal state.
func (m *ConnectionManager) reconnect(ctx context.Context) bool {
	m.setState(StateReconnecting)
	for attempt := 1; ; attempt++ {
		delay, ok := m.opts.Backoff.Next(attempt)
		if !ok {
			m.giveUp()
			return false
		}
		log.Info().Str("module", "client").Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
		select {
		case <-ctx.Done():
			m.setState(StateDisconnected)
			return false
		case <-time.After(delay):
		}
		err := m.dialAndAuth(ctx)
		if err == nil {
			return true
		}
		if errors.Is(err, core.ErrAuthFailed) {
			// Credentials went bad mid-session; retrying cannot help.
			m.mu.Lock()
			m.lastErr = err
			m.mu.Unlock()
			m.setState(StateDisconnected)
			return false
		}
		m.setState(StateReconnecting)
	}
}

// giveUp is the terminal reconnect path: only now is local state
// cleared, so transient blips never blank the UI.
func (m *ConnectionManager) giveUp() {
	m.mu.Lock()
	m.roomID = ""
	m.lastErr = ErrMaxReconnectAttempts
	m.mu.Unlock()
	if m.opts.Cache != nil {
		if err := m.opts.Cache.Clear(); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("cache clear failed")
		}
	}
	log.Error().Str("module", "client").Msg("reconnect budget exhausted")
	m.setState(StateDisconnected)
}

// isSupersededClose matches the close frame the server sends when a
// newer connection for the same user takes over.
func isSupersededClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Text == core.CloseReasonSuperseded
}

func (m *ConnectionManager) isSuperseded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.superseded
}

func (m *ConnectionManager) handleFrame(data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame")
		return
	}

	switch env.Type {
	case core.EventNewMessage:
		var ev core.NewMessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		m.cacheMessages(string(ev.Message.RoomID), []CachedMessage{CachedFromMessage(ev.Message)})
		if m.isOwnEcho(ev.Message) {
			return
		}
	case core.EventMessageHistory:
		var ev core.MessageHistoryEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		cached := make([]CachedMessage, 0, len(ev.Messages))
		for _, msg := range ev.Messages {
			cached = append(cached, CachedFromMessage(msg))
		}
		m.cacheMessages(ev.RoomID, cached)
	case core.EventSuperseded:
		// Another connection for this user took over; do not reconnect.
		m.mu.Lock()
		m.superseded = true
		m.lastErr = nil
		m.mu.Unlock()
	}

	if m.opts.OnEvent != nil {
		m.opts.OnEvent(env.Type, data)
	}
}

func (m *ConnectionManager) cacheMessages(roomID string, msgs []CachedMessage) {
	if m.opts.Cache == nil || roomID == "" {
		return
	}
	if err := m.opts.Cache.SaveMessages(roomID, msgs, m.opts.RoomCap); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("room", roomID).Msg("cache save failed")
	}
}

// isOwnEcho reports whether this message is the server echo of one this
// client already rendered optimistically.
func (m *ConnectionManager) isOwnEcho(msg domain.Message) bool {
	if string(msg.SenderID) != m.opts.Credentials.UserID || msg.ClientNonce == "" {
		return false
	}
	return !m.dedup.ShouldAccept(msg.SenderID, msg.RoomID, msg.ClientNonce)
}
