// ABOUTME: Tests for the session wiring layer
// ABOUTME: Covers undo/redo selection clearing, checkpoint history and presence publishing
package cli

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/mural/backend"
	"github.com/harperreed/mural/models"
	"github.com/harperreed/mural/persist"
)

// memSaver keeps saved documents in memory so sessions can be wired
// without a database.
type memSaver struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newMemSaver() *memSaver {
	return &memSaver{docs: make(map[string]*models.Document)}
}

func (m *memSaver) Save(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.BoardID] = doc
	return nil
}

func (m *memSaver) Load(ctx context.Context, boardID string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[boardID]
	if !ok {
		return nil, persist.ErrNotFound
	}
	return doc, nil
}

func sessionTestEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	xdg.Reload()
	t.Cleanup(xdg.Reload)
}

func newTestSession(t *testing.T, hub *backend.MemoryHub, boardID string) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := buildSession(ctx, hub.Connect(), newMemSaver(), boardID, time.Minute)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func postit(text string) *models.BoardObject {
	return &models.BoardObject{SourceType: models.SourcePostit, Text: text}
}

func TestUndoClearsSelection(t *testing.T) {
	sessionTestEnv(t)
	ctx := context.Background()
	s := newTestSession(t, backend.NewMemoryHub(), "board-undo-sel")

	a := s.Store.AddObject(postit("keep"))
	b := s.Store.AddObject(postit("drop"))

	// The selected object survives the restore; the selection must
	// still be cleared, not just pruned.
	s.Store.SetSelection([]string{a.ID})

	require.NoError(t, s.Undo(ctx))

	objects := s.Store.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, a.ID, objects[0].ID)
	assert.Empty(t, s.Store.Selection())
	_, ok := s.Store.Object(b.ID)
	assert.False(t, ok)
}

func TestRedoClearsSelection(t *testing.T) {
	sessionTestEnv(t)
	ctx := context.Background()
	s := newTestSession(t, backend.NewMemoryHub(), "board-redo-sel")

	a := s.Store.AddObject(postit("one"))
	s.Store.AddObject(postit("two"))
	require.NoError(t, s.Undo(ctx))

	s.Store.SetSelection([]string{a.ID})

	require.NoError(t, s.Redo(ctx))

	assert.Len(t, s.Store.Objects(), 2)
	assert.Empty(t, s.Store.Selection())
}

func TestCheckpointsPushHistory(t *testing.T) {
	sessionTestEnv(t)
	ctx := context.Background()
	s := newTestSession(t, backend.NewMemoryHub(), "board-hist")

	// Baseline snapshot only.
	assert.Equal(t, 1, s.History.Depth())

	obj := s.Store.AddObject(postit("note"))
	assert.Equal(t, 2, s.History.Depth(), "add is a checkpoint")

	s.Store.UpdateObject(obj.ID, func(o *models.BoardObject) { o.X = 10 })
	assert.Equal(t, 2, s.History.Depth(), "a drag frame is not a checkpoint")

	s.Store.CommitObject(obj.ID, func(o *models.BoardObject) { o.X = 20 })
	assert.Equal(t, 3, s.History.Depth(), "gesture end is a checkpoint")

	require.NoError(t, s.Undo(ctx))
	got, ok := s.Store.Object(obj.ID)
	require.True(t, ok)
	assert.Equal(t, float64(0), got.X, "undo lands on the add checkpoint, not the drag frame")
}

func TestSelectionPublishesToPeers(t *testing.T) {
	sessionTestEnv(t)
	ctx := context.Background()
	hub := backend.NewMemoryHub()
	s1 := newTestSession(t, hub, "board-presence")
	s2 := newTestSession(t, hub, "board-presence")

	obj := s1.Store.AddObject(postit("shared"))
	s1.Store.SetSelection([]string{obj.ID})

	peers, err := s2.Channel.PeerSelections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{obj.ID}, peers[s1.Channel.ConnID()])
}

func TestBaselineSnapshotIncludesReplicatedState(t *testing.T) {
	sessionTestEnv(t)
	ctx := context.Background()
	hub := backend.NewMemoryHub()
	s1 := newTestSession(t, hub, "board-join")

	shared := s1.Store.AddObject(postit("already here"))

	// A client joining an active board baselines on the replicated
	// state, so its first undo cannot drop a peer's objects.
	s2 := newTestSession(t, hub, "board-join")
	require.Len(t, s2.Store.Objects(), 1)

	mine := s2.Store.AddObject(postit("mine"))
	require.NoError(t, s2.Undo(ctx))

	objects := s2.Store.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, shared.ID, objects[0].ID)

	require.NoError(t, s2.Redo(ctx))
	_, ok := s2.Store.Object(mine.ID)
	assert.True(t, ok)
}
