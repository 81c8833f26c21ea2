// ABOUTME: WebSocket adapter speaking the collab server's JSON frame protocol
// ABOUTME: Mirrors shared keys and presence locally; read loop fires subscriptions
package backend

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// wsFrame is the wire shape exchanged with the collaboration server.
// The server assigns connection ids in its hello frame, echoes every
// kv.set to all clients (including the writer), and rebroadcasts the
// full presence state on any membership or slot change.
type wsFrame struct {
	Type  string            `json:"type"`
	Conn  int64             `json:"conn,omitempty"`
	Key   string            `json:"key,omitempty"`
	Value []byte            `json:"value,omitempty"`
	Field string            `json:"field,omitempty"`
	State map[string][]byte `json:"state,omitempty"`
	Peers map[string]Fields `json:"peers,omitempty"`
}

const (
	wsHello         = "hello"
	wsKVSet         = "kv.set"
	wsKVValue       = "kv.value"
	wsKVDelete      = "kv.delete"
	wsPresenceSet   = "presence.set"
	wsPresenceState = "presence.state"
)

// WSSession implements Session over a websocket connection to the
// collaboration server. The server owns ordering and durability of the
// shared keys; the session only mirrors what it has been told.
type WSSession struct {
	conn   *websocket.Conn
	connID int64

	writeMu sync.Mutex

	mu       sync.Mutex
	data     map[string][]byte
	peers    map[int64]Fields
	keySubs  map[string]map[int]func([]byte)
	presSubs map[int]func()
	nextSub  int

	done chan struct{}
	once sync.Once
}

// DialWS connects to the collaboration server for one board and waits
// for the server's hello frame carrying the assigned connection id and
// the current shared state.
func DialWS(ctx context.Context, url, boardID string) (*WSSession, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url+"/boards/"+boardID+"/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial collab server: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	var hello wsFrame
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read hello frame: %w", err)
	}
	if hello.Type != wsHello {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q", hello.Type)
	}

	s := &WSSession{
		conn:     conn,
		connID:   hello.Conn,
		data:     make(map[string][]byte),
		peers:    make(map[int64]Fields),
		keySubs:  make(map[string]map[int]func([]byte)),
		presSubs: make(map[int]func()),
		done:     make(chan struct{}),
	}
	for key, value := range hello.State {
		s.data[key] = value
	}
	s.applyPeers(hello.Peers)

	go s.readLoop()
	return s, nil
}

func (s *WSSession) ConnID() int64       { return s.connID }
func (s *WSSession) Shared() SharedStore { return (*wsStore)(s) }
func (s *WSSession) Presence() Presence  { return (*wsPresence)(s) }

// Close drops the connection; the server removes our presence slot.
func (s *WSSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.conn.Close()
}

func (s *WSSession) write(f *wsFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

func (s *WSSession) applyPeers(raw map[string]Fields) {
	if raw == nil {
		return
	}
	peers := make(map[int64]Fields, len(raw))
	for idStr, fields := range raw {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id == s.connID {
			continue
		}
		peers[id] = fields
	}
	s.peers = peers
}

func (s *WSSession) readLoop() {
	for {
		var f wsFrame
		if err := s.conn.ReadJSON(&f); err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("collab connection lost: %v", err)
			}
			return
		}

		switch f.Type {
		case wsKVValue:
			s.mu.Lock()
			s.data[f.Key] = f.Value
			fns := make([]func([]byte), 0, len(s.keySubs[f.Key]))
			for _, fn := range s.keySubs[f.Key] {
				fns = append(fns, fn)
			}
			s.mu.Unlock()
			for _, fn := range fns {
				fn(f.Value)
			}

		case wsPresenceState:
			s.mu.Lock()
			s.applyPeers(f.Peers)
			fns := make([]func(), 0, len(s.presSubs))
			for _, fn := range s.presSubs {
				fns = append(fns, fn)
			}
			s.mu.Unlock()
			for _, fn := range fns {
				fn()
			}
		}
	}
}

type wsStore WSSession

func (w *wsStore) Get(ctx context.Context, key string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	value, ok := w.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (w *wsStore) Set(ctx context.Context, key string, value []byte) error {
	return (*WSSession)(w).write(&wsFrame{Type: wsKVSet, Key: key, Value: value})
}

func (w *wsStore) Delete(ctx context.Context, key string) error {
	return (*WSSession)(w).write(&wsFrame{Type: wsKVDelete, Key: key})
}

func (w *wsStore) Subscribe(key string, fn func(value []byte)) func() {
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	if w.keySubs[key] == nil {
		w.keySubs[key] = make(map[int]func([]byte))
	}
	w.keySubs[key][id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.keySubs[key], id)
		w.mu.Unlock()
	}
}

type wsPresence WSSession

func (w *wsPresence) Set(ctx context.Context, field string, value []byte) error {
	return (*WSSession)(w).write(&wsFrame{Type: wsPresenceSet, Field: field, Value: value})
}

func (w *wsPresence) Peers(ctx context.Context) (map[int64]Fields, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	peers := make(map[int64]Fields, len(w.peers))
	for id, fields := range w.peers {
		copied := make(Fields, len(fields))
		for f, v := range fields {
			copied[f] = v
		}
		peers[id] = copied
	}
	return peers, nil
}

func (w *wsPresence) Subscribe(fn func()) func() {
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.presSubs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.presSubs, id)
		w.mu.Unlock()
	}
}
