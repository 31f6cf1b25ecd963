package transport

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/orchestrator/bus"
	"github.com/vinayprograms/orchestrator/logging"
)

// EventStreamConfig holds websocket stream configuration.
type EventStreamConfig struct {
	// Subject is the bus pattern each connection subscribes to.
	Subject string

	// WriteTimeout for write operations.
	WriteTimeout time.Duration

	// PingInterval for keepalive pings (0 = disabled).
	PingInterval time.Duration

	// MaxMessageSize limits incoming frames. Clients have nothing to say,
	// so this stays small.
	MaxMessageSize int64

	// AllowedOrigins restricts browser origins. Empty allows any origin.
	AllowedOrigins []string
}

// DefaultEventStreamConfig returns configuration with sensible defaults.
func DefaultEventStreamConfig() EventStreamConfig {
	return EventStreamConfig{
		Subject:        "tasks.>",
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
	}
}

// EventStream serves bus messages over websocket connections.
type EventStream struct {
	bus      bus.MessageBus
	config   EventStreamConfig
	upgrader *websocket.Upgrader
	logger   *logging.Logger
	active   atomic.Int64
}

// NewEventStream creates a stream handler over b.
func NewEventStream(b bus.MessageBus, cfg EventStreamConfig, logger *logging.Logger) *EventStream {
	def := DefaultEventStreamConfig()
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &EventStream{bus: b, config: cfg, logger: logger}
	s.upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Active returns the number of open connections.
func (s *EventStream) Active() int {
	return int(s.active.Load())
}

func (s *EventStream) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and streams events until either side
// goes away.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := s.bus.Subscribe(s.config.Subject)
	if err != nil {
		http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		sub.Unsubscribe()
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)
	s.logger.Debug("stream_open", map[string]interface{}{"remote": r.RemoteAddr})

	c := &streamConn{conn: conn, config: s.config, done: make(chan struct{})}
	go c.readLoop()
	c.writeLoop(sub)

	sub.Unsubscribe()
	c.close()
	s.logger.Debug("stream_closed", map[string]interface{}{"remote": r.RemoteAddr})
}

// streamConn owns one websocket connection.
type streamConn struct {
	conn   *websocket.Conn
	config EventStreamConfig

	mu       sync.Mutex // serializes writes
	done     chan struct{}
	doneOnce sync.Once
}

// readLoop discards client frames and signals done when the peer leaves.
func (c *streamConn) readLoop() {
	defer c.finish()
	c.conn.SetReadLimit(c.config.MaxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop forwards messages and pings until the subscription or the
// connection ends.
func (c *streamConn) writeLoop(sub bus.Subscription) {
	ticker := c.createPingTicker()
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, msg.Data); err != nil {
				return
			}
		}
	}
}

// createPingTicker creates a ticker for keepalive pings.
func (c *streamConn) createPingTicker() *time.Ticker {
	if c.config.PingInterval > 0 {
		return time.NewTicker(c.config.PingInterval)
	}
	// Return a ticker that never fires
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()
	return ticker
}

func (c *streamConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(c.config.WriteTimeout)
	if messageType == websocket.PingMessage {
		return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(messageType, data)
}

func (c *streamConn) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// close sends a close frame and tears down the connection.
func (c *streamConn) close() {
	c.finish()
	c.mu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.mu.Unlock()
	c.conn.Close()
}
