// ABOUTME: Tests for the runtime board store
// ABOUTME: Covers id-based mutation, stacking rules, selection and status
package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/mural/models"
)

func TestAddObjectAssignsIDAndZIndex(t *testing.T) {
	s := NewStore("board-1")

	first := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	second := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 0, first.ZIndex)
	assert.Equal(t, 1, second.ZIndex, "later objects stack on top")
}

func TestAddObjectCorrectsNamespaceViolation(t *testing.T) {
	s := NewStore("board-1")

	sticker := s.AddObject(&models.BoardObject{SourceType: models.SourceSticker, ZIndex: 5})
	assert.GreaterOrEqual(t, sticker.ZIndex, models.ReactionZIndexBase,
		"a reaction placed in the image range is lifted to its namespace")

	img := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded, ZIndex: models.ReactionZIndexBase + 1})
	assert.LessOrEqual(t, img.ZIndex, models.MaxObjectZIndex,
		"an image placed in the reaction range is pulled back down")
}

func TestUpdateObjectDropsUnknownID(t *testing.T) {
	s := NewStore("board-1")
	obj := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})

	// The object is deleted while an async operation is in flight.
	require.True(t, s.RemoveObject(obj.ID))

	// The late completion addresses the object by id and is dropped.
	called := false
	ok := s.UpdateObject(obj.ID, func(o *models.BoardObject) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
	assert.Empty(t, s.Objects())
}

func TestUpdateResolvesByIDNotPosition(t *testing.T) {
	s := NewStore("board-1")
	a := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	b := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})

	// Removing a shifts b's position; the id still finds b.
	require.True(t, s.RemoveObject(a.ID))
	require.True(t, s.UpdateObject(b.ID, func(o *models.BoardObject) { o.X = 42 }))

	got, ok := s.Object(b.ID)
	require.True(t, ok)
	assert.Equal(t, 42.0, got.X)
}

func TestBringToFrontStaysInNamespace(t *testing.T) {
	s := NewStore("board-1")
	img1 := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	img2 := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	sticker := s.AddObject(&models.BoardObject{SourceType: models.SourceSticker})

	require.True(t, s.BringToFront(img1.ID))

	got1, _ := s.Object(img1.ID)
	got2, _ := s.Object(img2.ID)
	gotSticker, _ := s.Object(sticker.ID)

	assert.Greater(t, got1.ZIndex, got2.ZIndex)
	assert.LessOrEqual(t, got1.ZIndex, models.MaxObjectZIndex)
	assert.Less(t, got1.ZIndex, gotSticker.ZIndex,
		"a promoted image still renders below every reaction")
}

func TestBringToFrontAlreadyTopIsQuiet(t *testing.T) {
	s := NewStore("board-1")
	s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	top := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})

	var changes []Change
	defer s.Listen(func(ch Change) { changes = append(changes, ch) })()

	require.True(t, s.BringToFront(top.ID))
	assert.Empty(t, changes, "promoting the topmost object is a no-op")
}

func TestRemoveObjectPrunesSelection(t *testing.T) {
	s := NewStore("board-1")
	a := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	b := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	s.SetSelection([]string{a.ID, b.ID})

	require.True(t, s.RemoveObject(a.ID))
	assert.Equal(t, []string{b.ID}, s.Selection())
}

func TestReplaceObjectsPrunesDeadSelection(t *testing.T) {
	s := NewStore("board-1")
	a := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	b := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	s.SetSelection([]string{a.ID, b.ID})

	s.ReplaceObjects([]*models.BoardObject{{ID: b.ID, SourceType: models.SourceUploaded}})

	assert.Equal(t, []string{b.ID}, s.Selection(),
		"selection keeps only ids that survived the replacement")
}

func TestCheckpointFlags(t *testing.T) {
	s := NewStore("board-1")

	var changes []Change
	defer s.Listen(func(ch Change) { changes = append(changes, ch) })()

	obj := s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	s.UpdateObject(obj.ID, func(o *models.BoardObject) { o.X = 1 })
	s.CommitObject(obj.ID, func(o *models.BoardObject) { o.X = 2 })
	s.RemoveObject(obj.ID)

	require.Len(t, changes, 4)
	assert.True(t, changes[0].Checkpoint, "add is a checkpoint")
	assert.False(t, changes[1].Checkpoint, "drag frames are not checkpoints")
	assert.True(t, changes[2].Checkpoint, "gesture end is a checkpoint")
	assert.True(t, changes[3].Checkpoint, "removal is a checkpoint")
}

func TestSetMetaSkipsNoop(t *testing.T) {
	s := NewStore("board-1")
	s.SetMeta(models.BoardMeta{Name: "Sketches"})

	var changes []Change
	defer s.Listen(func(ch Change) { changes = append(changes, ch) })()

	s.SetMeta(models.BoardMeta{Name: "Sketches"})
	assert.Empty(t, changes)

	s.SetMeta(models.BoardMeta{Name: "Renamed"})
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeMeta, changes[0].Kind)
}

func TestStatusTransitions(t *testing.T) {
	s := NewStore("board-1")
	assert.Equal(t, StatusSaved, s.Status())

	var changes []Change
	defer s.Listen(func(ch Change) { changes = append(changes, ch) })()

	s.SetStatus(StatusSaved)
	assert.Empty(t, changes, "same status is not re-announced")

	s.SetStatus(StatusSaving)
	s.SetStatus(StatusSaved)
	assert.Len(t, changes, 2)
}

func TestDocumentRoundTripThroughLoad(t *testing.T) {
	s := NewStore("board-1")
	s.SetMeta(models.BoardMeta{Name: "Sketches", Description: "scratch"})
	s.AddObject(&models.BoardObject{
		SourceType: models.SourceUploaded,
		RemoteURL:  "https://cdn.example.com/a.png",
		Width:      640,
		Height:     480,
	})
	s.AddObject(&models.BoardObject{SourceType: models.SourcePostit, Text: "remember"})
	s.SetViewport(models.Viewport{Zoom: 2, OffsetX: 10, OffsetY: 20})
	s.SetStatus(StatusUnsaved)

	doc := s.Document()
	require.Len(t, doc.Objects, 2)

	restored := NewStore("board-1")
	restored.LoadDocument(doc)

	assert.Len(t, restored.Objects(), 2)
	assert.Equal(t, s.Meta(), restored.Meta())
	assert.Equal(t, s.Viewport(), restored.Viewport())
	assert.Equal(t, StatusSaved, restored.Status(), "a freshly loaded document is saved")
	assert.Empty(t, restored.Selection())
}

func TestDocumentExcludesPendingObjects(t *testing.T) {
	s := NewStore("board-1")
	s.AddObject(&models.BoardObject{SourceType: models.SourceGenerated, Generating: true})

	assert.Empty(t, s.Document().Objects,
		"an in-flight generation has no durable form yet")
}

func TestListenUnsubscribe(t *testing.T) {
	s := NewStore("board-1")

	calls := 0
	unsub := s.Listen(func(Change) { calls++ })

	s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})
	unsub()
	s.AddObject(&models.BoardObject{SourceType: models.SourceUploaded})

	assert.Equal(t, 1, calls)
}
