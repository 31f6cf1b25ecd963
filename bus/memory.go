package bus

import (
	"sync"
	"sync/atomic"
)

// MemoryBus fans events out to in-process subscribers. It backs a single
// orchestrator and the tests.
type MemoryBus struct {
	bufferSize int
	dropped    atomic.Uint64

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*memorySub
	closed bool
}

type memorySub struct {
	bus     *MemoryBus
	id      uint64
	pattern string
	ch      chan *Message
}

// NewMemoryBus returns an open bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultConfig().BufferSize
	}
	return &MemoryBus{bufferSize: size, subs: make(map[uint64]*memorySub)}
}

// Publish never blocks. A subscriber whose buffer is full misses the
// event, which is counted in Dropped.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}

	// Channels are only closed under the write lock, so sending under the
	// read lock is safe.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	msg := &Message{Subject: subject, Data: data}
	for _, s := range b.subs {
		if !MatchSubject(s.pattern, subject) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.nextID++
	s := &memorySub{bus: b, id: b.nextID, pattern: subject, ch: make(chan *Message, b.bufferSize)}
	b.subs[s.id] = s
	return s, nil
}

// Dropped counts events lost to full subscriber buffers.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends every subscription. Later calls are no-ops.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	return nil
}

func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe closes the channel unless the bus already did.
func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(s.ch)
	}
	return nil
}
