package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/app"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/auth"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/core"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller terminates signaling WebSockets: it authenticates the
// connection, gates every message through the rate limiter, and dispatches
// into the orchestrator. Per-message errors become error events; nothing
// here ever tears the socket down except auth failure and read errors.
type Controller struct {
	Orch    *app.Orchestrator
	Auth    auth.Verifier
	Limiter *RateLimiter

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(orch *app.Orchestrator, verifier auth.Verifier, limiter *RateLimiter) *Controller {
	return &Controller{
		Orch:    orch,
		Auth:    verifier,
		Limiter: limiter,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bearerToken pulls the token from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query param.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	identity, err := ctl.Auth.Verify(c.Request.Context(), bearerToken(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rejected connection")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	user, err := domain.NewUser(identity.ID, identity.Username)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(identity.ID)).Msg("bad identity document")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	user.Roles = identity.Roles

	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("user", string(identity.ID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	sess := core.NewPeerSession(user, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(sid, sess, cancel)

	ctl.sendEvent(conn, "connected", connectedData{
		SocketID: sid,
		User:     user,
	})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}

// handleSignal dispatches one deserialized message. join-room draws from
// the join budget, everything that mutates room state from the signal
// budget; a denied message is rejected without touching the room.
func (ctl *Controller) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad payload")
		return
	}
	payload := []byte(env.Data)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	principal := ctl.principal(sid)

	switch env.Type {
	case msgJoinRoom:
		if !ctl.Limiter.Allow(ctx, principal, ActionJoin) {
			ctl.sendOpError(c, domain.ErrRateLimited)
			return
		}
		ctl.handleJoinRoom(ctx, sid, c, payload)
		return
	case msgLeaveRoom, msgCreateTransport, msgConnectTransport, msgProduce, msgConsume, msgResumeConsumer, msgMute:
		if !ctl.Limiter.Allow(ctx, principal, ActionSignal) {
			ctl.sendOpError(c, domain.ErrRateLimited)
			return
		}
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, "unknown message type")
		return
	}

	switch env.Type {
	case msgLeaveRoom:
		ctl.handleLeaveRoom(sid, c, payload)
	case msgCreateTransport:
		ctl.handleCreateTransport(ctx, sid, c, payload)
	case msgConnectTransport:
		ctl.handleConnectTransport(ctx, sid, c, payload)
	case msgProduce:
		ctl.handleProduce(ctx, sid, c, payload)
	case msgConsume:
		ctl.handleConsume(ctx, sid, c, payload)
	case msgResumeConsumer:
		ctl.handleResumeConsumer(ctx, sid, c, payload)
	case msgMute:
		ctl.handleMute(sid, c, payload)
	}
}

// principal is the rate-limiting subject: the authenticated user id.
func (ctl *Controller) principal(sid core.SessionID) domain.UserID {
	if sess, ok := ctl.Orch.Registry.Session(sid); ok {
		return sess.User().ID
	}
	return domain.UserID(sid)
}

// sendEvent wraps data in the {type, data} frame and queues it.
func (ctl *Controller) sendEvent(c *WsSignalConn, typ string, data any) {
	b, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{typ, data})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("sendEvent marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsSignalConn, msg string) {
	ctl.sendEvent(c, "error", errorData{Message: msg})
}

// sendOpError maps a room operation error to a wire error event.
func (ctl *Controller) sendOpError(c *WsSignalConn, err error) {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		ctl.sendError(c, "rate limited")
	case errors.Is(err, domain.ErrTransportNotFound):
		ctl.sendError(c, "transport not found")
	case errors.Is(err, domain.ErrProducerNotFound):
		ctl.sendError(c, "producer not found")
	case errors.Is(err, domain.ErrConsumerNotFound):
		ctl.sendError(c, "consumer not found")
	case errors.Is(err, domain.ErrMediaTimeout):
		ctl.sendError(c, "media engine timeout")
	case errors.Is(err, domain.ErrRoomUnavailable):
		ctl.sendError(c, "room unavailable")
	case errors.Is(err, domain.ErrRoomClosed):
		ctl.sendError(c, "room closed")
	case errors.Is(err, domain.ErrNotConsumable):
		ctl.sendError(c, "cannot consume producer")
	case errors.Is(err, domain.ErrPeerNotFound):
		ctl.sendError(c, "not a room member")
	case errors.Is(err, domain.ErrNotOwner):
		ctl.sendError(c, "not resource owner")
	case errors.Is(err, domain.ErrTransportConnected):
		ctl.sendError(c, "transport already connected")
	case errors.Is(err, domain.ErrTransportNotReady):
		ctl.sendError(c, "transport not connected")
	default:
		ctl.sendError(c, err.Error())
	}
}
