// ABOUTME: In-process collaboration hub for tests and offline sessions
// ABOUTME: Sessions share one LWW map; writes echo to every subscriber
package backend

import (
	"context"
	"sync"
)

// MemoryHub is an in-process collaboration backend. Every session
// connected to the same hub sees the same shared keys and each other's
// presence slots. Used by tests to drive multi-client scenarios and by
// offline single-user sessions.
type MemoryHub struct {
	mu       sync.Mutex
	nextConn int64
	nextSub  int

	data     map[string][]byte
	keySubs  map[string]map[int]func([]byte)
	presence map[int64]Fields
	presSubs map[int]func()
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		nextConn: 1,
		data:     make(map[string][]byte),
		keySubs:  make(map[string]map[int]func([]byte)),
		presence: make(map[int64]Fields),
		presSubs: make(map[int]func()),
	}
}

// Connect opens a new session with the next connection id.
func (h *MemoryHub) Connect() *MemorySession {
	h.mu.Lock()
	id := h.nextConn
	h.nextConn++
	h.presence[id] = Fields{}
	h.mu.Unlock()

	h.notifyPresence()
	return &MemorySession{hub: h, connID: id}
}

func (h *MemoryHub) set(key string, value []byte) {
	h.mu.Lock()
	h.data[key] = append([]byte(nil), value...)
	fns := make([]func([]byte), 0, len(h.keySubs[key]))
	for _, fn := range h.keySubs[key] {
		fns = append(fns, fn)
	}
	echo := append([]byte(nil), value...)
	h.mu.Unlock()

	// Deliver outside the lock; subscribers mutate stores.
	for _, fn := range fns {
		fn(echo)
	}
}

func (h *MemoryHub) notifyPresence() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.presSubs))
	for _, fn := range h.presSubs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// MemorySession is one client connection to a MemoryHub.
type MemorySession struct {
	hub    *MemoryHub
	connID int64
}

func (s *MemorySession) ConnID() int64       { return s.connID }
func (s *MemorySession) Shared() SharedStore { return &memoryStore{s: s} }
func (s *MemorySession) Presence() Presence  { return &memoryPresence{s: s} }

// Close drops this session's presence slot, as a disconnect would.
func (s *MemorySession) Close() error {
	h := s.hub
	h.mu.Lock()
	delete(h.presence, s.connID)
	h.mu.Unlock()
	h.notifyPresence()
	return nil
}

type memoryStore struct {
	s *MemorySession
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	h := m.s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	value, ok := h.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.s.hub.set(key, value)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	h := m.s.hub
	h.mu.Lock()
	delete(h.data, key)
	h.mu.Unlock()
	return nil
}

func (m *memoryStore) Subscribe(key string, fn func(value []byte)) func() {
	h := m.s.hub
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	if h.keySubs[key] == nil {
		h.keySubs[key] = make(map[int]func([]byte))
	}
	h.keySubs[key][id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.keySubs[key], id)
		h.mu.Unlock()
	}
}

type memoryPresence struct {
	s *MemorySession
}

func (m *memoryPresence) Set(ctx context.Context, field string, value []byte) error {
	h := m.s.hub
	h.mu.Lock()
	slot, ok := h.presence[m.s.connID]
	if ok {
		slot[field] = append([]byte(nil), value...)
	}
	h.mu.Unlock()

	if ok {
		h.notifyPresence()
	}
	return nil
}

func (m *memoryPresence) Peers(ctx context.Context) (map[int64]Fields, error) {
	h := m.s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	peers := make(map[int64]Fields, len(h.presence))
	for id, slot := range h.presence {
		if id == m.s.connID {
			continue
		}
		copied := make(Fields, len(slot))
		for field, value := range slot {
			copied[field] = append([]byte(nil), value...)
		}
		peers[id] = copied
	}
	return peers, nil
}

func (m *memoryPresence) Subscribe(fn func()) func() {
	h := m.s.hub
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.presSubs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.presSubs, id)
		h.mu.Unlock()
	}
}
