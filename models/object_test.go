// ABOUTME: Tests for board object projections between runtime and replicated forms
// ABOUTME: Covers resource exclusion rules and projection round-trips
package models

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsResource(t *testing.T) {
	tests := []struct {
		sourceType SourceType
		needs      bool
	}{
		{SourceGenerated, true},
		{SourceEdited, true},
		{SourceUploaded, true},
		{SourceSticker, true},
		{SourceAsset, true},
		{SourceText, false},
		{SourcePostit, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.sourceType), func(t *testing.T) {
			assert.Equal(t, tt.needs, tt.sourceType.NeedsResource())
		})
	}
}

func TestToReplicatedExcludesPendingUploads(t *testing.T) {
	obj := &BoardObject{
		ID:         "obj-1",
		SourceType: SourceUploaded,
		Uploading:  true,
	}

	assert.Nil(t, obj.ToReplicated(), "object without a remote copy must not replicate")

	obj.RemoteURL = "https://cdn.example.com/obj-1.png"
	obj.Uploading = false
	rep := obj.ToReplicated()
	require.NotNil(t, rep)
	assert.Equal(t, "obj-1", rep.ID)
}

func TestToReplicatedIncludesTextWithoutRemote(t *testing.T) {
	tests := []struct {
		name string
		obj  *BoardObject
	}{
		{"text", &BoardObject{ID: "t1", SourceType: SourceText, Text: "hello"}},
		{"postit", &BoardObject{ID: "p1", SourceType: SourcePostit, Text: "note", FillColor: "#ffd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := tt.obj.ToReplicated()
			require.NotNil(t, rep, "content-by-value objects replicate without a remote url")
			assert.Equal(t, tt.obj.Text, rep.Text)
		})
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	obj := &BoardObject{
		ID:           "obj-2",
		SourceType:   SourceGenerated,
		X:            10.5,
		Y:            -3,
		Width:        512,
		Height:       512,
		Rotation:     45,
		ScaleX:       1.5,
		ScaleY:       0.5,
		ZIndex:       7,
		RemoteURL:    "https://cdn.example.com/obj-2.png",
		RemoteKey:    "obj-2.png",
		Prompt:       "a lighthouse at dusk",
		ReferenceIDs: []string{"ref-1", "ref-2"},

		// Runtime-only state, must not survive the round trip.
		Resource:   image.NewRGBA(image.Rect(0, 0, 1, 1)),
		Generating: true,
	}

	back := obj.ToReplicated().Runtime()

	assert.Equal(t, obj.ID, back.ID)
	assert.Equal(t, obj.X, back.X)
	assert.Equal(t, obj.ZIndex, back.ZIndex)
	assert.Equal(t, obj.Prompt, back.Prompt)
	assert.Equal(t, obj.ReferenceIDs, back.ReferenceIDs)
	assert.Nil(t, back.Resource, "decoded resource never crosses the projection")
	assert.False(t, back.Busy(), "busy flags never cross the projection")

	// The projection is stable: projecting the round-tripped object
	// again yields the same replicated form.
	assert.Equal(t, obj.ToReplicated(), back.ToReplicated())
}

type stubLoader struct {
	img image.Image
	err error
}

func (s *stubLoader) Load(ctx context.Context, id, url string) (image.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.img, nil
}

func TestFromReplicatedResolvesResource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rep := &ReplicatedObject{
		ID:         "obj-3",
		SourceType: SourceUploaded,
		RemoteURL:  "https://cdn.example.com/obj-3.png",
	}

	obj, err := FromReplicated(context.Background(), rep, &stubLoader{img: img})
	require.NoError(t, err)
	assert.Equal(t, img, obj.Resource)
}

func TestFromReplicatedFailsOnLoadError(t *testing.T) {
	loadErr := errors.New("fetch failed")
	rep := &ReplicatedObject{
		ID:         "obj-4",
		SourceType: SourceUploaded,
		RemoteURL:  "https://cdn.example.com/obj-4.png",
	}

	_, err := FromReplicated(context.Background(), rep, &stubLoader{err: loadErr})
	require.Error(t, err)
	assert.ErrorIs(t, err, loadErr)
}

func TestFromReplicatedSkipsLoaderWithoutURL(t *testing.T) {
	rep := &ReplicatedObject{ID: "t2", SourceType: SourceText, Text: "hi"}

	obj, err := FromReplicated(context.Background(), rep, &stubLoader{err: errors.New("must not be called")})
	require.NoError(t, err)
	assert.Nil(t, obj.Resource)
}

func TestCloneIsIndependent(t *testing.T) {
	obj := &BoardObject{
		ID:           "obj-5",
		SourceType:   SourceEdited,
		ReferenceIDs: []string{"a"},
	}

	clone := obj.Clone()
	clone.X = 99
	clone.ReferenceIDs[0] = "b"

	assert.Zero(t, obj.X)
	assert.Equal(t, "a", obj.ReferenceIDs[0])
}
