package heartbeat

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New("heartbeat already started")
	ErrNotStarted     = errors.New("heartbeat not started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Beater delivers one heartbeat for a worker.
type Beater interface {
	Heartbeat(ctx context.Context, workerID string) error
}

// BeaterFunc adapts a function to Beater.
type BeaterFunc func(ctx context.Context, workerID string) error

// Heartbeat calls f.
func (f BeaterFunc) Heartbeat(ctx context.Context, workerID string) error {
	return f(ctx, workerID)
}

// SenderConfig configures a heartbeat sender.
type SenderConfig struct {
	// Beater delivers heartbeats.
	Beater Beater

	// WorkerID identifies the sending worker.
	WorkerID string

	// Interval between heartbeats.
	// Default: 15 seconds
	Interval time.Duration

	// Timeout bounds each heartbeat call.
	// Default: 5 seconds
	Timeout time.Duration

	// OnError is called when a heartbeat fails. Optional.
	OnError func(error)
}

// Validate checks the configuration.
func (c *SenderConfig) Validate() error {
	if c.Beater == nil {
		return errors.Join(ErrInvalidConfig, errors.New("beater is required"))
	}
	if c.WorkerID == "" {
		return errors.Join(ErrInvalidConfig, errors.New("worker ID is required"))
	}
	return nil
}

// DefaultSenderConfig returns configuration with sensible defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Interval: 15 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Liveness is a worker's heartbeat state.
type Liveness string

const (
	Alive Liveness = "alive"
	Stale Liveness = "stale"
)

// DefaultTimeout is how long a worker may stay silent before it is stale.
const DefaultTimeout = 60 * time.Second

// Classify returns the liveness of a worker last seen at last.
// A heartbeat exactly timeout ago still counts as alive.
func Classify(last, now time.Time, timeout time.Duration) Liveness {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if last.IsZero() || now.Sub(last) > timeout {
		return Stale
	}
	return Alive
}
