// ABOUTME: Charm Cloud KV adapter for the collaboration backend contracts
// ABOUTME: Poll-based change notification and presence heartbeats over charm kv
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"
)

// presenceStale is how long a peer slot may go without a heartbeat
// before it is treated as disconnected.
const presenceStale = 15 * time.Second

// CharmSession implements Session on top of a charm cloud KV store.
// Charm kv has no push channel, so changes are observed by a poll loop
// that syncs the store and diffs watched keys. Presence is emulated
// with heartbeat-stamped per-connection keys under the board's presence
// prefix; stale slots read as disconnected peers.
type CharmSession struct {
	mu      sync.Mutex
	kv      *kv.KV
	config  *CharmConfig
	boardID string
	connID  int64

	watched  map[string][]byte
	keySubs  map[string]map[int]func([]byte)
	presSubs map[int]func()
	nextSub  int
	lastSeen string

	done chan struct{}
	once sync.Once
}

type presenceSlot struct {
	Seen   time.Time         `json:"seen"`
	Fields map[string][]byte `json:"fields,omitempty"`
}

// DialCharm opens the charm KV for the app and joins the board's
// presence namespace with a fresh connection id.
func DialCharm(cfg *CharmConfig, boardID string) (*CharmSession, error) {
	if cfg == nil {
		cfg = DefaultCharmConfig()
	}

	// Set charm host before opening KV
	_ = os.Setenv("CHARM_HOST", cfg.Host)

	db, err := kv.OpenWithDefaults(AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}
	if err := db.Sync(); err != nil {
		return nil, fmt.Errorf("failed initial charm sync: %w", err)
	}

	s := &CharmSession{
		kv:       db,
		config:   cfg,
		boardID:  boardID,
		connID:   newConnID(),
		watched:  make(map[string][]byte),
		keySubs:  make(map[string]map[int]func([]byte)),
		presSubs: make(map[int]func()),
		done:     make(chan struct{}),
	}

	if err := s.heartbeat(nil); err != nil {
		return nil, fmt.Errorf("failed to publish presence: %w", err)
	}

	go s.pollLoop()
	return s, nil
}

// newConnID derives a connection id that is unique among concurrently
// connected clients with overwhelming probability. Millisecond start
// time in the high bits keeps ids roughly join-ordered.
func newConnID() int64 {
	return (time.Now().UnixMilli() << 16) | rand.Int63n(1<<16)
}

func (s *CharmSession) ConnID() int64       { return s.connID }
func (s *CharmSession) Shared() SharedStore { return (*charmStore)(s) }
func (s *CharmSession) Presence() Presence  { return (*charmPresence)(s) }

// Close removes this connection's presence slot and stops the poller.
func (s *CharmSession) Close() error {
	s.once.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete([]byte(s.presenceKey(s.connID))); err != nil {
		return err
	}
	return s.kv.Sync()
}

func (s *CharmSession) presencePrefix() string {
	return "presence:" + s.boardID + ":"
}

func (s *CharmSession) presenceKey(connID int64) string {
	return s.presencePrefix() + strconv.FormatInt(connID, 10)
}

// heartbeat rewrites this connection's slot with a fresh timestamp,
// preserving (or replacing) its published fields.
func (s *CharmSession) heartbeat(fields map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fields == nil {
		if data, err := s.kv.Get([]byte(s.presenceKey(s.connID))); err == nil {
			var slot presenceSlot
			if json.Unmarshal(data, &slot) == nil {
				fields = slot.Fields
			}
		}
	}

	data, err := json.Marshal(presenceSlot{Seen: time.Now().UTC(), Fields: fields})
	if err != nil {
		return err
	}
	if err := s.kv.Set([]byte(s.presenceKey(s.connID)), data); err != nil {
		return err
	}
	if s.config.AutoSync {
		_ = s.kv.Sync()
	}
	return nil
}

// pollLoop periodically syncs the KV and fires change callbacks for
// watched keys and presence membership.
func (s *CharmSession) pollLoop() {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_ = s.heartbeat(nil)
			s.poll()
		}
	}
}

func (s *CharmSession) poll() {
	s.mu.Lock()
	_ = s.kv.Sync()

	type delivery struct {
		fns   []func([]byte)
		value []byte
	}
	var deliveries []delivery

	for key, last := range s.watched {
		value, err := s.kv.Get([]byte(key))
		if err != nil {
			continue
		}
		if bytes.Equal(value, last) {
			continue
		}
		s.watched[key] = append([]byte(nil), value...)
		fns := make([]func([]byte), 0, len(s.keySubs[key]))
		for _, fn := range s.keySubs[key] {
			fns = append(fns, fn)
		}
		deliveries = append(deliveries, delivery{fns: fns, value: append([]byte(nil), value...)})
	}

	// Presence change detection: fire on any membership or slot delta.
	seen := s.presenceFingerprintLocked()
	var presFns []func()
	if seen != s.lastSeen {
		s.lastSeen = seen
		presFns = make([]func(), 0, len(s.presSubs))
		for _, fn := range s.presSubs {
			presFns = append(presFns, fn)
		}
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		for _, fn := range d.fns {
			fn(d.value)
		}
	}
	for _, fn := range presFns {
		fn()
	}
}

func (s *CharmSession) presenceFingerprintLocked() string {
	keys, err := s.kv.Keys()
	if err != nil {
		return s.lastSeen
	}
	prefix := s.presencePrefix()
	var b strings.Builder
	for _, key := range keys {
		if !strings.HasPrefix(string(key), prefix) {
			continue
		}
		value, err := s.kv.Get(key)
		if err != nil {
			continue
		}
		b.Write(key)
		b.WriteByte('=')
		b.Write(value)
		b.WriteByte(';')
	}
	return b.String()
}

type charmStore CharmSession

func (c *charmStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, err := c.kv.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (c *charmStore) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Set([]byte(key), value); err != nil {
		return err
	}
	// Record our own write so the poller does not echo it back.
	if _, watched := c.watched[key]; watched {
		c.watched[key] = append([]byte(nil), value...)
	}
	if c.config.AutoSync {
		_ = c.kv.Sync()
	}
	return nil
}

func (c *charmStore) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Delete([]byte(key)); err != nil {
		return err
	}
	if c.config.AutoSync {
		_ = c.kv.Sync()
	}
	return nil
}

func (c *charmStore) Subscribe(key string, fn func(value []byte)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.keySubs[key] == nil {
		c.keySubs[key] = make(map[int]func([]byte))
	}
	c.keySubs[key][id] = fn
	if _, ok := c.watched[key]; !ok {
		if value, err := c.kv.Get([]byte(key)); err == nil {
			c.watched[key] = append([]byte(nil), value...)
		} else {
			c.watched[key] = nil
		}
	}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.keySubs[key], id)
		c.mu.Unlock()
	}
}

type charmPresence CharmSession

func (c *charmPresence) Set(ctx context.Context, field string, value []byte) error {
	s := (*CharmSession)(c)

	s.mu.Lock()
	fields := map[string][]byte{}
	if data, err := s.kv.Get([]byte(s.presenceKey(s.connID))); err == nil {
		var slot presenceSlot
		if json.Unmarshal(data, &slot) == nil && slot.Fields != nil {
			fields = slot.Fields
		}
	}
	s.mu.Unlock()

	fields[field] = value
	return s.heartbeat(fields)
}

func (c *charmPresence) Peers(ctx context.Context) (map[int64]Fields, error) {
	s := (*CharmSession)(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys()
	if err != nil {
		return nil, err
	}

	prefix := s.presencePrefix()
	peers := make(map[int64]Fields)
	now := time.Now().UTC()
	for _, key := range keys {
		name := string(key)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		connID, err := strconv.ParseInt(strings.TrimPrefix(name, prefix), 10, 64)
		if err != nil || connID == s.connID {
			continue
		}
		data, err := s.kv.Get(key)
		if err != nil {
			continue
		}
		var slot presenceSlot
		if err := json.Unmarshal(data, &slot); err != nil {
			continue
		}
		if now.Sub(slot.Seen) > presenceStale {
			continue
		}
		fields := make(Fields, len(slot.Fields))
		for f, v := range slot.Fields {
			fields[f] = v
		}
		peers[connID] = fields
	}
	return peers, nil
}

func (c *charmPresence) Subscribe(fn func()) func() {
	s := (*CharmSession)(c)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.presSubs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.presSubs, id)
		s.mu.Unlock()
	}
}
