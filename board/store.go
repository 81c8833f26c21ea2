// ABOUTME: Reactive store for the runtime board state of one document
// ABOUTME: All mutations address objects by id; listeners fire outside the lock
package board

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/harperreed/mural/models"
)

// Status is the user-visible persistence state of the document.
type Status string

const (
	StatusSaved   Status = "saved"
	StatusSaving  Status = "saving"
	StatusUnsaved Status = "unsaved"
)

// ChangeKind classifies a store mutation for listeners.
type ChangeKind string

const (
	ChangeObjects   ChangeKind = "objects"
	ChangeMeta      ChangeKind = "meta"
	ChangeSelection ChangeKind = "selection"
	ChangeViewport  ChangeKind = "viewport"
	ChangeStatus    ChangeKind = "status"
)

// Change describes one mutation. Checkpoint marks semantically
// meaningful completion points (upload finished, gesture ended,
// deletion, restack), the moments the history manager snapshots.
// Intermediate mutations like individual drag frames are not
// checkpoints.
type Change struct {
	Kind       ChangeKind
	Checkpoint bool
}

// Store holds the runtime state of one open board: the object list,
// per-user selection and viewport, board metadata, and save status.
// The object list is the replicated truth's local projection; selection
// and viewport are exclusively this user's.
type Store struct {
	mu           sync.RWMutex
	boardID      string
	objects      []*models.BoardObject
	selection    []string
	viewport     models.Viewport
	meta         models.BoardMeta
	status       Status
	listeners    map[int]func(Change)
	nextListener int
}

// NewStore creates an empty store for a board.
func NewStore(boardID string) *Store {
	return &Store{
		boardID:   boardID,
		viewport:  models.DefaultViewport(),
		status:    StatusSaved,
		listeners: make(map[int]func(Change)),
	}
}

// BoardID returns the board this store belongs to.
func (s *Store) BoardID() string {
	return s.boardID
}

// Listen registers a mutation listener. The returned function removes
// it. Listeners are invoked after the mutation, outside the store lock,
// on the mutating goroutine.
func (s *Store) Listen(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// AddObject inserts an object, assigning an id and a top-of-namespace
// zIndex when the caller left them zero-valued. Creation is a
// checkpoint.
func (s *Store) AddObject(obj *models.BoardObject) *models.BoardObject {
	s.mu.Lock()
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	// Zero means "unassigned": new objects land on top of their own
	// namespace. An explicit zIndex outside the namespace is corrected
	// the same way.
	if obj.ZIndex == 0 || !obj.SourceType.InZIndexNamespace(obj.ZIndex) {
		obj.ZIndex = models.NextZIndex(s.objects, obj.SourceType)
	}
	s.objects = append(s.objects, obj)
	clone := obj.Clone()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeObjects, Checkpoint: true})
	return clone
}

// UpdateObject applies mutate to the object with the given id and
// reports whether it was found. A false return is how late async
// completions for deleted objects are silently dropped. Not a
// checkpoint: drag frames and busy-flag flips route through here.
func (s *Store) UpdateObject(id string, mutate func(*models.BoardObject)) bool {
	return s.update(id, mutate, false)
}

// CommitObject is UpdateObject at a meaningful completion point: the
// end of a transform gesture, an upload or generation finishing.
func (s *Store) CommitObject(id string, mutate func(*models.BoardObject)) bool {
	return s.update(id, mutate, true)
}

func (s *Store) update(id string, mutate func(*models.BoardObject), checkpoint bool) bool {
	s.mu.Lock()
	obj := s.findLocked(id)
	if obj == nil {
		s.mu.Unlock()
		return false
	}
	mutate(obj)
	if !obj.SourceType.InZIndexNamespace(obj.ZIndex) {
		// Mutations may never move an object across the namespace split.
		obj.ZIndex = models.NextZIndex(s.objects, obj.SourceType)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeObjects, Checkpoint: checkpoint})
	return true
}

// RemoveObject deletes an object and drops it from the selection.
// There is no soft-delete; a removed id is gone from both forms.
func (s *Store) RemoveObject(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, obj := range s.objects {
		if obj.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.objects = append(s.objects[:idx], s.objects[idx+1:]...)
	s.selection = removeString(s.selection, id)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeObjects, Checkpoint: true})
	return true
}

// Object returns a copy of the object with the given id.
func (s *Store) Object(id string) (*models.BoardObject, bool) {
	s.mu.RLock()
	obj := s.findLocked(id)
	s.mu.RUnlock()
	if obj == nil {
		return nil, false
	}
	return obj.Clone(), true
}

// Objects returns a copy of the runtime list.
func (s *Store) Objects() []*models.BoardObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.BoardObject, len(s.objects))
	for i, obj := range s.objects {
		out[i] = obj.Clone()
	}
	return out
}

// ReplaceObjects swaps the entire runtime list atomically. Used by the
// sync bridge when applying a remote state and by undo/redo when
// restoring a snapshot; neither is a checkpoint. Selection entries for
// ids that no longer exist are pruned.
func (s *Store) ReplaceObjects(objects []*models.BoardObject) {
	s.mu.Lock()
	s.objects = objects
	alive := make(map[string]bool, len(objects))
	for _, obj := range objects {
		alive[obj.ID] = true
	}
	kept := s.selection[:0]
	for _, id := range s.selection {
		if alive[id] {
			kept = append(kept, id)
		}
	}
	s.selection = kept
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeObjects})
}

// BringToFront promotes the object to the top of its own stacking
// namespace. Selecting an image can never push it past the reaction
// floor. A restack is a checkpoint.
func (s *Store) BringToFront(id string) bool {
	s.mu.Lock()
	obj := s.findLocked(id)
	if obj == nil {
		s.mu.Unlock()
		return false
	}
	top := true
	for _, other := range s.objects {
		if other.ID == obj.ID || other.SourceType.IsReaction() != obj.SourceType.IsReaction() {
			continue
		}
		if other.ZIndex >= obj.ZIndex {
			top = false
			break
		}
	}
	if top {
		s.mu.Unlock()
		return true
	}
	obj.ZIndex = models.NextZIndex(excludeObject(s.objects, id), obj.SourceType)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeObjects, Checkpoint: true})
	return true
}

// SetSelection replaces this user's selection. Peers see it via the
// presence channel but never mutate it.
func (s *Store) SetSelection(ids []string) {
	s.mu.Lock()
	s.selection = append([]string(nil), ids...)
	sort.Strings(s.selection)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSelection})
}

// ClearSelection empties the selection, e.g. after undo/redo.
func (s *Store) ClearSelection() {
	s.SetSelection(nil)
}

// Selection returns the selected object ids, sorted.
func (s *Store) Selection() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.selection...)
}

// SetViewport updates the per-user view state.
func (s *Store) SetViewport(v models.Viewport) {
	s.mu.Lock()
	s.viewport = v
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeViewport})
}

// Viewport returns the current view state.
func (s *Store) Viewport() models.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// SetMeta updates the board name/description.
func (s *Store) SetMeta(meta models.BoardMeta) {
	s.mu.Lock()
	if s.meta == meta {
		s.mu.Unlock()
		return
	}
	s.meta = meta
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMeta, Checkpoint: true})
}

// Meta returns the board metadata.
func (s *Store) Meta() models.BoardMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// SetStatus moves the save-status indicator.
func (s *Store) SetStatus(st Status) {
	s.mu.Lock()
	if s.status == st {
		s.mu.Unlock()
		return
	}
	s.status = st
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeStatus})
}

// Status returns the save-status indicator.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Document assembles the durable snapshot of the board.
func (s *Store) Document() *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &models.Document{
		BoardID:     s.boardID,
		Name:        s.meta.Name,
		Description: s.meta.Description,
		Objects:     models.ProjectReplicated(s.objects),
		Viewport:    s.viewport,
	}
}

// LoadDocument replaces the store contents from a durable snapshot.
// Object resources are not resolved here; the sync bridge or caller
// rehydrates them.
func (s *Store) LoadDocument(doc *models.Document) {
	objects := make([]*models.BoardObject, 0, len(doc.Objects))
	for _, rep := range doc.Objects {
		objects = append(objects, rep.Runtime())
	}

	s.mu.Lock()
	s.objects = objects
	s.meta = models.BoardMeta{Name: doc.Name, Description: doc.Description}
	s.viewport = doc.Viewport
	s.selection = nil
	s.status = StatusSaved
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeObjects})
}

func (s *Store) findLocked(id string) *models.BoardObject {
	for _, obj := range s.objects {
		if obj.ID == id {
			return obj
		}
	}
	return nil
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func excludeObject(objects []*models.BoardObject, id string) []*models.BoardObject {
	out := make([]*models.BoardObject, 0, len(objects))
	for _, obj := range objects {
		if obj.ID != id {
			out = append(out, obj)
		}
	}
	return out
}
