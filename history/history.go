// ABOUTME: Bounded undo/redo stack of serialized document snapshots
// ABOUTME: Held outside the reactive store so snapshotting never feeds back
package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harperreed/mural/models"
	"github.com/oklog/ulid/v2"
)

// DefaultMaxDepth is the retained snapshot bound.
const DefaultMaxDepth = 50

// ErrSnapshotRestore reports that an undo/redo target could not be
// rehydrated. The cursor is rolled back and the document is unchanged.
var ErrSnapshotRestore = errors.New("history: snapshot restore failed")

// Snapshot is one serialized copy of the replicated object list.
type Snapshot struct {
	ID      string
	TakenAt time.Time
	data    []byte
}

// Manager keeps a bounded linear history of document snapshots plus a
// cursor into it. Strictly per-client state, deliberately outside the
// store so pushing a snapshot triggers no reactive updates.
type Manager struct {
	mu       sync.Mutex
	snaps    []Snapshot
	step     int // index of the current snapshot, -1 when empty
	maxDepth int
}

// NewManager creates an empty history with the given bound.
func NewManager(maxDepth int) *Manager {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Manager{step: -1, maxDepth: maxDepth}
}

// Push records a snapshot of the object list, filtered to durably
// backed objects (the same projection the sync bridge publishes).
// Identical consecutive snapshots are skipped. A push after an undo
// truncates the redo future, and the oldest snapshot is evicted once
// the bound is exceeded. Returns whether a snapshot was recorded.
func (m *Manager) Push(objects []*models.BoardObject) (bool, error) {
	data, err := models.MarshalReplicated(models.ProjectReplicated(objects))
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step >= 0 && bytes.Equal(m.snaps[m.step].data, data) {
		return false, nil
	}

	// A new action after an undo invalidates the redo history.
	m.snaps = m.snaps[:m.step+1]
	m.snaps = append(m.snaps, Snapshot{
		ID:      ulid.Make().String(),
		TakenAt: time.Now().UTC(),
		data:    data,
	})
	m.step++

	if len(m.snaps) > m.maxDepth {
		drop := len(m.snaps) - m.maxDepth
		m.snaps = append([]Snapshot(nil), m.snaps[drop:]...)
		m.step -= drop
	}
	return true, nil
}

// CanUndo reports whether a previous snapshot exists.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step > 0
}

// CanRedo reports whether a future snapshot exists.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step >= 0 && m.step < len(m.snaps)-1
}

// Undo moves the cursor back one snapshot and rehydrates it. Returns
// (nil, nil) at the boundary: undo past the oldest retained snapshot
// is a no-op. On a restore failure the cursor move is rolled back and
// ErrSnapshotRestore is returned; the live document must stay as it
// was. The caller replaces the runtime list wholesale with the result
// and clears the selection.
func (m *Manager) Undo(ctx context.Context, loader models.ResourceLoader) ([]*models.BoardObject, error) {
	return m.restore(ctx, loader, -1)
}

// Redo moves the cursor forward one snapshot; same contract as Undo.
func (m *Manager) Redo(ctx context.Context, loader models.ResourceLoader) ([]*models.BoardObject, error) {
	return m.restore(ctx, loader, +1)
}

func (m *Manager) restore(ctx context.Context, loader models.ResourceLoader, dir int) ([]*models.BoardObject, error) {
	m.mu.Lock()
	target := m.step + dir
	if target < 0 || target >= len(m.snaps) {
		m.mu.Unlock()
		return nil, nil
	}
	data := m.snaps[target].data
	m.mu.Unlock()

	reps, err := models.UnmarshalReplicated(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotRestore, err)
	}

	objects := make([]*models.BoardObject, len(reps))
	for i, rep := range reps {
		obj, err := models.FromReplicated(ctx, rep, loader)
		if err != nil {
			// Abandon the step: the cursor was never moved, the live
			// list is untouched.
			return nil, fmt.Errorf("%w: %v", ErrSnapshotRestore, err)
		}
		objects[i] = obj
	}

	m.mu.Lock()
	// The stack may have been truncated while resolving; re-check.
	if target < 0 || target >= len(m.snaps) || !bytes.Equal(m.snaps[target].data, data) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: history changed during restore", ErrSnapshotRestore)
	}
	m.step = target
	m.mu.Unlock()

	return objects, nil
}

// Depth returns the number of retained snapshots.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

// Step returns the cursor position, -1 when empty.
func (m *Manager) Step() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Reset discards all snapshots. Called on document switch.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.snaps = nil
	m.step = -1
	m.mu.Unlock()
}
