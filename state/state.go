package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Common errors.
var (
	ErrNotFound      = errors.New("key not found")
	ErrClosed        = errors.New("store closed")
	ErrInvalidKey    = errors.New("invalid key")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Store is a flat key-value store.
type Store interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores a value, replacing any previous one.
	Put(key string, value []byte) error

	// Delete removes a key.
	// Returns nil if the key does not exist.
	Delete(key string) error

	// Keys returns all keys matching a pattern, sorted.
	// Pattern supports * wildcard at the end (e.g., "snapshot.*").
	Keys(pattern string) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Driver is one of memory, file, sqlite, bolt, redis, nats.
	Driver string

	// Path is the directory for file, or the database file for sqlite and bolt.
	Path string

	// URL is the server address for redis and nats.
	URL string

	// Prefix namespaces redis keys.
	Prefix string

	// Bucket names the bolt bucket or the NATS KV bucket.
	Bucket string

	// Timeout bounds each remote operation.
	Timeout time.Duration
}

// DefaultConfig returns a file store in the working directory.
func DefaultConfig() Config {
	return Config{
		Driver:  "file",
		Path:    ".",
		Prefix:  "orchestrator:",
		Bucket:  "orchestrator",
		Timeout: 5 * time.Second,
	}
}

// Open creates the store named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	def := DefaultConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = def.Bucket
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "file":
		if cfg.Path == "" {
			cfg.Path = def.Path
		}
		return NewFileStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "bolt", "bbolt":
		return NewBoltStore(cfg.Path, cfg.Bucket)
	case "redis":
		if cfg.Prefix == "" {
			cfg.Prefix = def.Prefix
		}
		return NewRedisStore(RedisConfig{URL: cfg.URL, Prefix: cfg.Prefix, Timeout: cfg.Timeout})
	case "nats":
		url := cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("orchestrator-state"), nats.Timeout(cfg.Timeout))
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		s, err := NewNATSStore(NATSStoreConfig{Conn: conn, Bucket: cfg.Bucket, Timeout: cfg.Timeout, ownsConn: true})
		if err != nil {
			conn.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// ValidateKey checks if a key is valid.
// Keys double as file names for the file backend, so path separators are
// rejected along with the usual empty, padded and dotted forms.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, " /\\") {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return ErrInvalidKey
	}
	if len(key) > 1024 {
		return ErrInvalidKey
	}
	return nil
}

// MatchPattern checks if a key matches a pattern.
// Supports * wildcard at the end (e.g., "snapshot.*" matches "snapshot.v1").
func MatchPattern(pattern, key string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
