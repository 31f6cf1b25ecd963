package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Sender calls a Beater on a fixed interval.
type Sender struct {
	beater   Beater
	workerID string
	interval time.Duration
	timeout  time.Duration
	onError  func(error)

	mu      sync.Mutex
	lastErr error

	sent    atomic.Int64
	failed  atomic.Int64
	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSender creates a heartbeat sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	def := DefaultSenderConfig()
	interval := cfg.Interval
	if interval <= 0 {
		interval = def.Interval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = def.Timeout
	}

	return &Sender{
		beater:   cfg.Beater,
		workerID: cfg.WorkerID,
		interval: interval,
		timeout:  timeout,
		onError:  cfg.OnError,
	}, nil
}

// Start begins sending heartbeats. The first one goes out immediately.
func (s *Sender) Start(ctx context.Context) error {
	if s.running.Swap(true) {
		return ErrAlreadyStarted
	}

	if ctx == nil {
		ctx = context.Background()
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx)
	return nil
}

// run is the main heartbeat loop.
func (s *Sender) run(ctx context.Context) {
	defer close(s.doneCh)

	s.beat(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.beat(ctx)
		}
	}
}

func (s *Sender) beat(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.beater.Heartbeat(callCtx, s.workerID)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.failed.Add(1)
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	s.sent.Add(1)
}

// Stop stops sending heartbeats and waits for the loop to exit.
func (s *Sender) Stop() error {
	if !s.running.Swap(false) {
		return ErrNotStarted
	}
	close(s.stopCh)
	<-s.doneCh
	return nil
}

// Sent returns the number of successful heartbeats.
func (s *Sender) Sent() int64 {
	return s.sent.Load()
}

// Failed returns the number of failed heartbeats.
func (s *Sender) Failed() int64 {
	return s.failed.Load()
}

// LastError returns the result of the most recent heartbeat.
func (s *Sender) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// WorkerID returns the sender's worker ID.
func (s *Sender) WorkerID() string {
	return s.workerID
}
