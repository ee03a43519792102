package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Backend is what a Server fronts: the command and event sides of a
// bridge, usually the in-process emulator.
type Backend interface {
	ports.Bridge
	ports.EventSource
}

// ServerConfig holds per-connection timeouts.
type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server exposes a Backend over WebSocket using the same frame
// protocol Client speaks: cmd frames are answered with ack frames
// carrying the matching reqId, and enabled events flow back as event
// frames in emission order.
type Server struct {
	backend Backend
	cfg     ServerConfig
	log     *zap.SugaredLogger

	mu    sync.RWMutex
	conns map[*serverConn]struct{}
}

func NewServer(backend Backend, cfg ServerConfig, log *zap.SugaredLogger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultServerConfig().ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultServerConfig().WriteTimeout
	}
	return &Server{
		backend: backend,
		cfg:     cfg,
		log:     log,
		conns:   make(map[*serverConn]struct{}),
	}
}

// HandleBridge upgrades the request and serves frames until the
// client disconnects. Safe for concurrent use as an http.HandlerFunc.
func (s *Server) HandleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorw("websocket upgrade failed", "error", err)
		return
	}

	sc := &serverConn{
		srv:  s,
		conn: conn,
		subs: make(map[subKey]ports.Subscription),
	}

	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()

	s.log.Infow("client connected", "remote", conn.RemoteAddr())
	sc.serve()

	s.mu.Lock()
	delete(s.conns, sc)
	s.mu.Unlock()

	s.log.Infow("client disconnected", "remote", conn.RemoteAddr())
}

// ConnectionCount reports how many clients are attached.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	for _, sc := range conns {
		sc.teardown()
	}
	return nil
}

type serverConn struct {
	srv  *Server
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[subKey]ports.Subscription
	closed bool
}

func (sc *serverConn) serve() {
	defer sc.teardown()

	sc.conn.SetReadDeadline(time.Now().Add(sc.srv.cfg.ReadTimeout))
	sc.conn.SetPingHandler(func(appData string) error {
		sc.conn.SetReadDeadline(time.Now().Add(sc.srv.cfg.ReadTimeout))
		sc.writeMu.Lock()
		defer sc.writeMu.Unlock()
		sc.conn.SetWriteDeadline(time.Now().Add(sc.srv.cfg.WriteTimeout))
		return sc.conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	for {
		var f frame
		if err := sc.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				sc.srv.log.Infow("client read failed", "error", err)
			}
			return
		}
		sc.conn.SetReadDeadline(time.Now().Add(sc.srv.cfg.ReadTimeout))

		if f.Kind != "cmd" {
			sc.srv.log.Debugw("unexpected frame kind", "kind", f.Kind)
			continue
		}
		sc.handleCommand(f)
	}
}

// handleCommand answers one cmd frame. Event enable and disable are
// owned by the connection so that emitted events land on the socket
// that asked for them; everything else goes straight to the backend.
func (sc *serverConn) handleCommand(f frame) {
	var (
		payload any
		err     error
	)
	switch f.Name {
	case ports.CmdEnableEvent:
		err = sc.enableEvent(f)
	case ports.CmdDisableEvent:
		sc.disableEvent(f)
	default:
		if f.ReqID == "" {
			if err := sc.srv.backend.Notify(context.Background(), f.ID, f.Name, f.Payload); err != nil {
				sc.srv.log.Warnw("notify failed", "command", f.Name, "error", err)
			}
			return
		}
		payload, err = sc.srv.backend.Invoke(context.Background(), f.ID, f.Name, f.Payload)
	}

	if f.ReqID == "" {
		if err != nil {
			sc.srv.log.Warnw("command failed", "command", f.Name, "error", err)
		}
		return
	}

	ack := frame{Kind: "ack", ReqID: f.ReqID, ID: f.ID}
	if err != nil {
		ack.Error = err.Error()
	} else {
		ack.Payload = marshalPayload(payload)
	}
	if err := sc.write(ack); err != nil {
		sc.srv.log.Warnw("ack write failed", "command", f.Name, "error", err)
	}
}

func (sc *serverConn) enableEvent(f frame) error {
	var req struct {
		Event domain.EventType `json:"event"`
	}
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		return err
	}

	key := subKey{sessionID: f.ID, event: req.Event}

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return domain.ErrBridgeUnavailable
	}
	if _, ok := sc.subs[key]; ok {
		sc.mu.Unlock()
		return nil
	}
	sc.mu.Unlock()

	sub, err := sc.srv.backend.Subscribe(f.ID, req.Event, func(payload json.RawMessage) {
		ev := frame{Kind: "event", ID: f.ID, Name: string(req.Event), Payload: payload}
		if err := sc.write(ev); err != nil {
			sc.srv.log.Debugw("event write failed", "event", req.Event, "error", err)
		}
	})
	if err != nil {
		return err
	}

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		sub.Remove()
		return domain.ErrBridgeUnavailable
	}
	if _, ok := sc.subs[key]; ok {
		// Raced with a duplicate enable from the same client.
		sc.mu.Unlock()
		sub.Remove()
		return nil
	}
	sc.subs[key] = sub
	sc.mu.Unlock()
	return nil
}

func (sc *serverConn) disableEvent(f frame) {
	var req struct {
		Event domain.EventType `json:"event"`
	}
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		sc.srv.log.Debugw("disable event payload", "error", err)
		return
	}

	key := subKey{sessionID: f.ID, event: req.Event}
	sc.mu.Lock()
	sub, ok := sc.subs[key]
	delete(sc.subs, key)
	sc.mu.Unlock()

	if ok {
		sub.Remove()
	}
}

func (sc *serverConn) write(f frame) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.conn.SetWriteDeadline(time.Now().Add(sc.srv.cfg.WriteTimeout))
	return sc.conn.WriteJSON(f)
}

func (sc *serverConn) teardown() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	subs := sc.subs
	sc.subs = make(map[subKey]ports.Subscription)
	sc.mu.Unlock()

	for _, sub := range subs {
		sub.Remove()
	}
	sc.conn.Close()
}
