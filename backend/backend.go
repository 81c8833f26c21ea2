// ABOUTME: Collaboration backend contracts consumed by the document engine
// ABOUTME: Shared last-writer-wins KV, ephemeral presence, numeric connection ids
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned by SharedStore.Get for an absent key.
var ErrNotFound = errors.New("backend: key not found")

// Fields is the set of named values a connection publishes into its
// presence slot.
type Fields map[string][]byte

// SharedStore is the replicated key-value service: last-writer-wins per
// key, no cross-key transactions, subscribe-on-change semantics. Every
// Set is a network write; callers are expected to suppress no-op
// publishes themselves.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Subscribe registers fn for changes to key, including changes
	// originating from this client (the service echoes all writes).
	// The returned function cancels the subscription.
	Subscribe(key string, fn func(value []byte)) (cancel func())
}

// Presence is the ephemeral per-connection broadcast: fields published
// here are visible to connected peers and vanish when the connection
// drops. No durability, no ordering beyond eventual visibility.
type Presence interface {
	Set(ctx context.Context, field string, value []byte) error

	// Peers returns the presence slots of all other connected clients
	// keyed by their numeric connection id.
	Peers(ctx context.Context) (map[int64]Fields, error)

	// Subscribe registers fn for membership or slot changes.
	Subscribe(fn func()) (cancel func())
}

// Session is one client connection to the collaboration backend for a
// single board.
type Session interface {
	// ConnID is this connection's identifier, unique among currently
	// connected clients and comparable numerically for leader election.
	ConnID() int64

	Shared() SharedStore
	Presence() Presence
	Close() error
}

// Board key layout in the shared store.
const (
	KeyObjectsSuffix = ":objects"
	KeyMetaSuffix    = ":meta"
)

// ObjectsKey returns the shared-store key holding a board's replicated
// object list.
func ObjectsKey(boardID string) string {
	return "board:" + boardID + KeyObjectsSuffix
}

// MetaKey returns the shared-store key holding a board's metadata.
func MetaKey(boardID string) string {
	return "board:" + boardID + KeyMetaSuffix
}
