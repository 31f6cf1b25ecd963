package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/orchestrator/logging"
)

// NATSConfig configures a NATSBus.
type NATSConfig struct {
	Config

	// URL of the NATS server. Defaults to nats.DefaultURL.
	URL string

	// Name identifies this orchestrator in NATS monitoring.
	Name string

	// Token authenticates with the server, if set.
	Token string

	ReconnectWait  time.Duration
	MaxReconnects  int // -1 retries forever
	ConnectTimeout time.Duration

	// DrainTimeout bounds Close while pending events are flushed.
	DrainTimeout time.Duration

	// Logger receives connection state changes. Optional.
	Logger *logging.Logger
}

// DefaultNATSConfig reconnects forever, two seconds apart.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		Name:           "orchestrator",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
		DrainTimeout:   5 * time.Second,
	}
}

// NATSBus carries task events over core NATS so processes other than the
// orchestrator can follow them.
type NATSBus struct {
	conn   *nats.Conn
	config NATSConfig
	closed chan struct{}
}

// NewNATSBus connects to the server in cfg.URL.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	def := DefaultNATSConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	b := &NATSBus{config: cfg, closed: make(chan struct{})}
	conn, err := nats.Connect(cfg.URL, b.options()...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	b.conn = conn
	return b, nil
}

func (b *NATSBus) options() []nats.Option {
	cfg := b.config
	log := cfg.Logger
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DrainTimeout(cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			fields := map[string]interface{}{"url": cfg.URL}
			if err != nil {
				fields["error"] = err.Error()
			}
			log.Warn("bus_disconnected", fields)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("bus_reconnected", map[string]interface{}{"url": c.ConnectedUrl()})
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(b.closed) }),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	return opts
}

// Publish sends data on subject. It does not wait for delivery.
func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.conn.IsClosed() || b.conn.IsDraining() {
		return ErrClosed
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe follows a subject pattern. Messages arriving while the
// subscription buffer is full are dropped.
func (b *NATSBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() || b.conn.IsDraining() {
		return nil, ErrClosed
	}

	s := &natsSub{ch: make(chan *Message, b.config.BufferSize)}
	sub, err := b.conn.Subscribe(subject, s.deliver)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	s.sub = sub
	return s, nil
}

// Close drains the connection so events published during shutdown still
// reach the server, then waits for the connection to close.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	select {
	case <-b.closed:
	case <-time.After(b.config.DrainTimeout + time.Second):
		b.conn.Close()
	}
	return nil
}

// Conn exposes the connection, e.g. to share it with a JetStream store.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

type natsSub struct {
	sub *nats.Subscription

	mu   sync.Mutex
	ch   chan *Message
	done bool
}

func (s *natsSub) deliver(m *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.ch <- &Message{Subject: m.Subject, Data: m.Data}:
	default:
	}
}

func (s *natsSub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe stops delivery and closes the channel.
func (s *natsSub) Unsubscribe() error {
	err := s.sub.Unsubscribe()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.ch)
	}
	if err == nats.ErrConnectionClosed || err == nats.ErrConnectionDraining {
		return nil
	}
	return err
}
