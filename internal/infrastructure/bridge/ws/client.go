// Package ws connects the SDK to a remote conferencing bridge over a
// single WebSocket. Commands go out as cmd frames and are matched to
// ack frames by request id; event frames fan out to subscribers in
// arrival order from one read loop.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/circuitbreaker"
	"roomlink/pkg/logger"
	"roomlink/pkg/retry"
	"roomlink/pkg/tracing"
)

// Config holds the connection settings for a bridge client.
type Config struct {
	URL          string
	WriteTimeout time.Duration
	AckTimeout   time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration

	// Commands per second allowed on the wire. Zero disables limiting.
	SendRate  float64
	SendBurst int

	Retry   retry.Config
	Breaker circuitbreaker.Config
}

// DefaultConfig returns settings suitable for a local bridge.
func DefaultConfig() Config {
	return Config{
		URL:          "ws://localhost:8787/bridge",
		WriteTimeout: 10 * time.Second,
		AckTimeout:   15 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		SendRate:     100,
		SendBurst:    20,
		Retry:        retry.DefaultConfig(),
		Breaker:      circuitbreaker.DefaultConfig(),
	}
}

type frame struct {
	Kind    string           `json:"kind"` // cmd, ack, event
	ReqID   string           `json:"reqId,omitempty"`
	ID      domain.SessionID `json:"id,omitempty"`
	Name    string           `json:"name,omitempty"`
	Payload json.RawMessage  `json:"payload,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type subKey struct {
	sessionID domain.SessionID
	event     domain.EventType
}

type handlerEntry struct {
	id string
	h  ports.EventHandler
}

// Client implements ports.Bridge and ports.EventSource over one
// WebSocket connection.
type Client struct {
	conn    *websocket.Conn
	cfg     Config
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	log     *zap.SugaredLogger
	ctxLog  *logger.ContextLogger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan frame
	handlers map[subKey][]handlerEntry
	closed   bool
	done     chan struct{}
}

// Dial connects to the bridge, retrying with backoff per cfg.Retry,
// and starts the read and ping loops.
func Dial(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Client, error) {
	conn, err := retry.RetryWithResult(ctx, cfg.Retry, func() (*websocket.Conn, error) {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
		if err != nil {
			log.Warnw("bridge dial failed", "url", cfg.URL, "error", err)
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.SendRate > 0 {
		burst := cfg.SendBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.FailureThreshold == 0 {
		breakerCfg = circuitbreaker.DefaultConfig()
	}

	c := &Client{
		conn:     conn,
		cfg:      cfg,
		limiter:  limiter,
		breaker:  circuitbreaker.New(breakerCfg),
		log:      log,
		ctxLog:   logger.NewContextLogger(log.Desugar()),
		pending:  make(map[string]chan frame),
		handlers: make(map[subKey][]handlerEntry),
		done:     make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	c.log.Infow("bridge connected", "url", cfg.URL)
	return c, nil
}

// Invoke sends a command and blocks until the matching ack arrives.
// Bridge-side failures come back as errors verbatim.
func (c *Client) Invoke(ctx context.Context, sessionID domain.SessionID, command string, payload any) (json.RawMessage, error) {
	ctx, span := tracing.TraceCommand(ctx, command, string(sessionID))
	defer span.End()

	start := time.Now()
	raw, err := c.invoke(ctx, sessionID, command, payload)
	c.ctxLog.LogCommand(ctx, command, time.Since(start).Milliseconds(), err)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return raw, err
}

func (c *Client) invoke(ctx context.Context, sessionID domain.SessionID, command string, payload any) (json.RawMessage, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("%s: %w", command, circuitbreaker.ErrOpen)
	}

	reqID := uuid.NewString()
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.breaker.RecordFailure()
		return nil, domain.ErrBridgeUnavailable
	}
	c.pending[reqID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, frame{Kind: "cmd", ReqID: reqID, ID: sessionID, Name: command, Payload: marshalPayload(payload)}); err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case f := <-ch:
		if f.Error != "" {
			// The bridge answered, so the transport is healthy; the
			// command itself failed.
			c.breaker.RecordSuccess()
			return nil, fmt.Errorf("%s: %s", command, f.Error)
		}
		c.breaker.RecordSuccess()
		return f.Payload, nil
	case <-timer.C:
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("%s: ack timeout after %s", command, c.cfg.AckTimeout)
	case <-ctx.Done():
		// Caller cancellation says nothing about bridge health.
		return nil, ctx.Err()
	case <-c.done:
		c.breaker.RecordFailure()
		return nil, domain.ErrBridgeUnavailable
	}
}

// Notify sends a command without waiting for an ack.
func (c *Client) Notify(ctx context.Context, sessionID domain.SessionID, command string, payload any) error {
	return c.send(ctx, frame{Kind: "cmd", ID: sessionID, Name: command, Payload: marshalPayload(payload)})
}

func (c *Client) send(ctx context.Context, f frame) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send throttled: %w", err)
		}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.teardown()
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnw("bridge read failed", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		switch f.Kind {
		case "ack":
			c.mu.Lock()
			ch, ok := c.pending[f.ReqID]
			c.mu.Unlock()
			if !ok {
				c.log.Debugw("ack with no waiter", "req_id", f.ReqID)
				continue
			}
			ch <- f
		case "event":
			c.dispatchEvent(f)
		default:
			c.log.Debugw("unknown frame kind", "kind", f.Kind)
		}
	}
}

// dispatchEvent runs handlers synchronously so events for one session
// are observed in wire order. Handlers are copied out first; a handler
// may remove its own subscription without deadlocking.
func (c *Client) dispatchEvent(f frame) {
	key := subKey{sessionID: f.ID, event: domain.EventType(f.Name)}
	c.mu.Lock()
	entries := make([]handlerEntry, len(c.handlers[key]))
	copy(entries, c.handlers[key])
	c.mu.Unlock()

	for _, e := range entries {
		e.h(f.Payload)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.log.Warnw("ping failed", "error", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan frame)
	close(c.done)
	c.mu.Unlock()

	for reqID, ch := range pending {
		ch <- frame{Kind: "ack", ReqID: reqID, Error: domain.ErrBridgeUnavailable.Error()}
	}
	c.conn.Close()
}

// Close shuts the connection down. Pending Invoke calls fail with
// ErrBridgeUnavailable.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.teardown()
	return nil
}

func marshalPayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}
