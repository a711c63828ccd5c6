package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/apperr"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/transport/bridge"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Relay outcomes recorded on the bridge message counter
const (
	OutcomeRelayed = "relayed"
	OutcomeDropped = "dropped"
)

// Options configures a Hub
type Options struct {
	// MaxMessageBytes caps one inbound websocket message
	MaxMessageBytes int64
	// PingInterval is how often idle peers are pinged; the read deadline is
	// three intervals
	PingInterval time.Duration
	// AllowedOrigins limits which page origins may join; "*" or empty
	// allows any
	AllowedOrigins []string
	Logger         *logging.Logger
	Metrics        *monitoring.Metrics
}

// Hub relays protocol messages between the host and frame of each session
type Hub struct {
	opts     Options
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

type session struct {
	id    string
	peers map[bridge.Role]*peer
}

type peer struct {
	hub     *Hub
	session string
	role    bridge.Role
	origin  string
	trace   string
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

// Stats is the hub's state for health output
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

// NewHub creates a relay hub
func NewHub(opts Options) *Hub {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 << 10
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	h := &Hub{
		opts:     opts,
		logger:   logger.Named("bridge"),
		metrics:  opts.Metrics,
		sessions: make(map[string]*session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.originAllowed(origin)
}

func (h *Hub) originAllowed(origin string) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// CreateSession hands out a fresh session id for a host page
func (h *Hub) CreateSession(c *gin.Context) {
	id := uuid.NewString()
	c.JSON(http.StatusCreated, gin.H{
		"session": id,
		"host":    bridge.Path(id, bridge.RoleHost),
		"frame":   bridge.Path(id, bridge.RoleFrame),
	})
}

// HandleConnection upgrades GET /bridge/:session/:role and relays until
// either side disconnects. The joining window's origin is the Origin header
// set by browsers; headerless clients declare theirs in the origin query
// parameter.
func (h *Hub) HandleConnection(c *gin.Context) {
	sessionID := c.Param("session")
	role := bridge.Role(c.Param("role"))
	if !bridge.ValidSession(sessionID) || !role.Valid() {
		err := apperr.New(apperr.BadRequest, "Invalid bridge session or role.")
		c.AbortWithStatusJSON(err.Status(), err.Body())
		return
	}
	origin := c.GetHeader("Origin")
	if origin == "" {
		origin = c.Query("origin")
	}
	if origin != "" && !h.originAllowed(origin) {
		err := apperr.New(apperr.Forbidden, "Origin not allowed.")
		c.AbortWithStatusJSON(err.Status(), err.Body())
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("bridge upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &peer{
		hub:     h,
		session: sessionID,
		role:    role,
		origin:  origin,
		trace:   string(tracing.GetTraceID(c.Request.Context())),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	if !h.join(p) {
		cancel()
		conn.Close()
		return
	}
	p.run()
}

func (h *Hub) join(p *peer) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	s, ok := h.sessions[p.session]
	if !ok {
		s = &session{id: p.session, peers: make(map[bridge.Role]*peer, 2)}
		h.sessions[p.session] = s
	}
	replaced := s.peers[p.role]
	s.peers[p.role] = p
	count := len(h.sessions)
	h.mu.Unlock()

	if replaced != nil {
		// A reloaded window takes over its role
		replaced.cancel()
	}
	if h.metrics != nil {
		h.metrics.SetBridgeSessions(count)
		h.metrics.IncBridgeConnections(string(p.role))
	}
	h.logger.Info("bridge peer joined",
		zap.String("session", p.session),
		zap.String("role", string(p.role)),
		zap.String("origin", p.origin),
		zap.String("trace_id", p.trace))
	return true
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	if s, ok := h.sessions[p.session]; ok && s.peers[p.role] == p {
		delete(s.peers, p.role)
		if len(s.peers) == 0 {
			delete(h.sessions, p.session)
		}
	}
	count := len(h.sessions)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetBridgeSessions(count)
		h.metrics.DecBridgeConnections(string(p.role))
	}
	h.logger.Info("bridge peer left",
		zap.String("session", p.session),
		zap.String("role", string(p.role)))
}

// relay forwards one inbound frame from p to its counterpart
func (h *Hub) relay(p *peer, raw []byte) {
	f, err := bridge.DecodeFrame(raw)
	if err != nil {
		h.drop(p, "malformed", err)
		return
	}

	h.mu.Lock()
	var target *peer
	if s, ok := h.sessions[p.session]; ok {
		target = s.peers[p.role.Peer()]
	}
	h.mu.Unlock()

	if target == nil {
		h.drop(p, "no peer", nil)
		return
	}
	if f.TargetOrigin != "" && f.TargetOrigin != "*" && f.TargetOrigin != target.origin {
		h.drop(p, "target origin mismatch", nil)
		return
	}

	out, err := bridge.EncodeFrame(bridge.Frame{Origin: p.origin, Source: p.role.Source(), Data: f.Data})
	if err != nil {
		h.drop(p, "encode", err)
		return
	}
	if !target.enqueue(out) {
		h.drop(p, "peer buffer full", nil)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordBridgeMessage(string(p.role), OutcomeRelayed)
	}
}

func (h *Hub) drop(p *peer, reason string, err error) {
	if h.metrics != nil {
		h.metrics.RecordBridgeMessage(string(p.role), OutcomeDropped)
	}
	fields := []zap.Field{
		zap.String("session", p.session),
		zap.String("role", string(p.role)),
		zap.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	h.logger.Debug("bridge message dropped", fields...)
}

// Stats reports open sessions and connected peers
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Stats{Sessions: len(h.sessions)}
	for _, s := range h.sessions {
		st.Connections += len(s.peers)
	}
	return st
}

// Close disconnects every peer and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var peers []*peer
	for _, s := range h.sessions {
		for _, p := range s.peers {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.cancel()
	}
}

func (p *peer) run() {
	defer p.hub.leave(p)
	defer p.conn.Close()
	defer p.cancel()

	go p.writeLoop()
	p.readLoop()
}

func (p *peer) enqueue(msg []byte) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) readLoop() {
	pongWait := 3 * p.hub.opts.PingInterval
	p.conn.SetReadLimit(p.hub.opts.MaxMessageBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Unblock ReadMessage when the peer is cancelled from elsewhere
	go func() {
		<-p.ctx.Done()
		_ = p.conn.SetReadDeadline(time.Now())
	}()

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}
		p.hub.relay(p, data)
	}
}

func (p *peer) writeLoop() {
	ticker := time.NewTicker(p.hub.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				p.cancel()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.cancel()
				return
			}
		}
	}
}
