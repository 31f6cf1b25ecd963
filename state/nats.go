package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStoreConfig configures a JetStream key-value store.
type NATSStoreConfig struct {
	Conn   *nats.Conn
	Bucket string // default "orchestrator"

	// MaxValueSize caps a single snapshot. Defaults to 8 MiB.
	MaxValueSize int32

	// Timeout bounds each KV round trip. Defaults to 5s.
	Timeout time.Duration

	ownsConn bool
}

// NATSStore keeps values in a JetStream KV bucket with a history of one,
// so only the latest snapshot is retained on the server.
type NATSStore struct {
	conn    *nats.Conn
	kv      jetstream.KeyValue
	timeout time.Duration
	owns    bool
	closed  atomic.Bool
}

// NewNATSStore binds to cfg.Bucket, creating it if needed.
func NewNATSStore(cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, errors.New("nats store: nil connection")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "orchestrator"
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = 8 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("nats store: jetstream: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Timeout)
	defer cancel()
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		History:      1,
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("nats store: bucket %s: %w", cfg.Bucket, err)
	}
	return &NATSStore{conn: cfg.Conn, kv: kv, timeout: cfg.Timeout, owns: cfg.ownsConn}, nil
}

// call runs fn under the store timeout once key and store state check out.
// An empty key skips validation.
func (s *NATSStore) call(key string, scale time.Duration, fn func(context.Context) error) error {
	if key != "" {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}
	if s.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), scale*s.timeout)
	defer cancel()
	return fn(ctx)
}

func (s *NATSStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.call(key, 1, func(ctx context.Context) error {
		entry, err := s.kv.Get(ctx, key)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("nats store: get %s: %w", key, err)
		}
		value = entry.Value()
		return nil
	})
	return value, err
}

func (s *NATSStore) Put(key string, value []byte) error {
	return s.call(key, 1, func(ctx context.Context) error {
		if _, err := s.kv.Put(ctx, key, value); err != nil {
			return fmt.Errorf("nats store: put %s: %w", key, err)
		}
		return nil
	})
}

// Delete is a no-op for a missing key.
func (s *NATSStore) Delete(key string) error {
	return s.call(key, 1, func(ctx context.Context) error {
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("nats store: delete %s: %w", key, err)
		}
		return nil
	})
}

// Keys lists the bucket and filters it with MatchPattern.
func (s *NATSStore) Keys(pattern string) ([]string, error) {
	var keys []string
	err := s.call("", 2, func(ctx context.Context) error {
		lister, err := s.kv.ListKeys(ctx)
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("nats store: list keys: %w", err)
		}
		defer lister.Stop()
		for key := range lister.Keys() {
			if MatchPattern(pattern, key) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// Close marks the store closed. The connection is closed only when Open
// dialled it.
func (s *NATSStore) Close() error {
	if !s.closed.Swap(true) && s.owns {
		s.conn.Close()
	}
	return nil
}
