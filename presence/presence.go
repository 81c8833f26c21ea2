// ABOUTME: Per-user ephemeral selection sharing and leader derivation
// ABOUTME: Leader = numerically lowest connection id; evaluated on demand
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/harperreed/mural/backend"
)

// FieldSelection is the presence field carrying a client's selected
// object ids.
const FieldSelection = "selection"

// Channel publishes this client's selection into its presence slot and
// reads the peers' slots. Selection is shared for visibility only:
// peers never mutate each other's selection, and the slot disappears
// with the connection.
type Channel struct {
	presence backend.Presence
	connID   int64
}

// NewChannel wraps a backend presence handle.
func NewChannel(p backend.Presence, connID int64) *Channel {
	return &Channel{presence: p, connID: connID}
}

// ConnID returns this client's connection identifier.
func (c *Channel) ConnID() int64 {
	return c.connID
}

// PublishSelection shares the current selection with connected peers.
func (c *Channel) PublishSelection(ctx context.Context, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	data, err := json.Marshal(sorted)
	if err != nil {
		return err
	}
	if err := c.presence.Set(ctx, FieldSelection, data); err != nil {
		return fmt.Errorf("failed to publish selection: %w", err)
	}
	return nil
}

// PeerSelections returns each connected peer's selected object ids.
// Peers with no published selection appear with an empty set.
func (c *Channel) PeerSelections(ctx context.Context) (map[int64][]string, error) {
	peers, err := c.presence.Peers(ctx)
	if err != nil {
		return nil, err
	}

	selections := make(map[int64][]string, len(peers))
	for id, fields := range peers {
		var ids []string
		if raw, ok := fields[FieldSelection]; ok && len(raw) > 0 {
			if err := json.Unmarshal(raw, &ids); err != nil {
				// A malformed slot is treated as no selection.
				ids = nil
			}
		}
		selections[id] = ids
	}
	return selections, nil
}

// Subscribe registers fn for presence changes (membership or slots).
func (c *Channel) Subscribe(fn func()) (cancel func()) {
	return c.presence.Subscribe(fn)
}

// IsLeader reports whether this client currently holds the leader role:
// the connected participant with the numerically lowest connection id.
//
// The rule is deterministic and needs no coordination round-trip; when
// the leader disconnects, the next-lowest id takes over on the next
// evaluation. The result is never cached because membership changes
// asynchronously. When no peer information is available at all (e.g.
// right after connecting, or the presence read fails), this client
// defaults to leader so a single-user session always persists.
func (c *Channel) IsLeader(ctx context.Context) bool {
	return c.LeaderID(ctx) == c.connID
}

// LeaderID returns the connection id that currently holds the leader
// role from this client's local view.
func (c *Channel) LeaderID(ctx context.Context) int64 {
	peers, err := c.presence.Peers(ctx)
	if err != nil || len(peers) == 0 {
		return c.connID
	}

	leader := c.connID
	for id := range peers {
		if id < leader {
			leader = id
		}
	}
	return leader
}
