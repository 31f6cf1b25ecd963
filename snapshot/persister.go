package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/orchestrator/logging"
	"github.com/vinayprograms/orchestrator/state"
)

// DefaultKey is the store key the snapshot lives under. With the file
// driver this is the file name.
const DefaultKey = "state.json"

// Persister reads and writes one snapshot document in a store.
type Persister struct {
	store  state.Store
	key    string
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Persister.
type Option func(*Persister)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(p *Persister) {
		if key != "" {
			p.key = key
		}
	}
}

// WithLogger sets the logger for load warnings.
func WithLogger(l *logging.Logger) Option {
	return func(p *Persister) {
		p.logger = l
	}
}

// WithClock sets the time source for SavedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		p.now = now
	}
}

// NewPersister creates a persister over store.
func NewPersister(store state.Store, opts ...Option) *Persister {
	p := &Persister{
		store:  store,
		key:    DefaultKey,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the store key in use.
func (p *Persister) Key() string {
	return p.key
}

// Load reads the snapshot. A missing or undecodable snapshot yields an empty
// document and a nil error; both cases are logged as warnings. Only a
// storage failure returns an error, and the empty document comes with it so
// callers can still start.
func (p *Persister) Load() (*Document, error) {
	data, err := p.store.Get(p.key)
	if errors.Is(err, state.ErrNotFound) {
		p.logger.Warn("snapshot_missing", map[string]interface{}{"key": p.key})
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("load snapshot %s: %w", p.key, err)
	}

	doc, mig, err := Decode(data)
	if err != nil {
		p.logger.Warn("snapshot_corrupt", map[string]interface{}{
			"key":   p.key,
			"error": err.Error(),
		})
		return Empty(), nil
	}

	for _, id := range mig.Dropped {
		p.logger.Warn("snapshot_task_dropped", map[string]interface{}{
			"key":  p.key,
			"task": id,
		})
	}
	if mig.Legacy {
		p.logger.Info("snapshot_legacy_format", map[string]interface{}{"key": p.key})
	}
	p.logger.SnapshotLoaded(p.key, len(doc.Tasks), mig.Migrated)
	return doc, nil
}

// Save stamps SavedAt and writes doc.
func (p *Persister) Save(doc *Document) error {
	doc.SavedAt = p.now().UTC()
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := p.store.Put(p.key, data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", p.key, err)
	}
	return nil
}
