// ABOUTME: Board object model with runtime and replicated representations
// ABOUTME: Defines BoardObject, ReplicatedObject, and the projections between them
package models

import (
	"context"
	"fmt"
	"image"
)

// SourceType tags where a board object came from and which optional
// fields are meaningful for it.
type SourceType string

const (
	SourceGenerated SourceType = "generated"
	SourceEdited    SourceType = "edited"
	SourceUploaded  SourceType = "uploaded"
	SourceSticker   SourceType = "sticker"
	SourcePostit    SourceType = "postit"
	SourceText      SourceType = "text"
	SourceAsset     SourceType = "asset"
)

// BoardObject is the runtime form of a canvas object. It lives only on
// the client holding it: the decoded Resource and the busy flags are
// never transmitted or persisted.
type BoardObject struct {
	ID         string
	SourceType SourceType

	X        float64
	Y        float64
	Width    float64
	Height   float64
	Rotation float64
	ScaleX   float64
	ScaleY   float64
	ZIndex   int

	// Resource is the decoded raster backing this object, owned by the
	// resource cache and looked up by ID. Nil for text-only objects and
	// for objects whose load failed or has not completed.
	Resource image.Image

	// RemoteURL/RemoteKey locate the durable copy of the resource.
	// Empty while an upload or generation is still in flight.
	RemoteURL string
	RemoteKey string

	// Advisory busy markers, never persisted.
	Uploading          bool
	Generating         bool
	Upscaling          bool
	RemovingBackground bool

	// Content fields for text and post-it objects.
	Text       string
	FontFamily string
	FontSize   float64
	TextColor  string
	FillColor  string

	// Provenance for generated and edited objects.
	Prompt       string
	ReferenceIDs []string
}

// ReplicatedObject is the serializable subset of a board object. It is
// the only form transmitted between clients and written to durable
// storage.
type ReplicatedObject struct {
	ID         string     `json:"id"`
	SourceType SourceType `json:"source_type"`

	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	ZIndex   int     `json:"z_index"`

	RemoteURL string `json:"remote_url,omitempty"`
	RemoteKey string `json:"remote_key,omitempty"`

	Text       string  `json:"text,omitempty"`
	FontFamily string  `json:"font_family,omitempty"`
	FontSize   float64 `json:"font_size,omitempty"`
	TextColor  string  `json:"text_color,omitempty"`
	FillColor  string  `json:"fill_color,omitempty"`

	Prompt       string   `json:"prompt,omitempty"`
	ReferenceIDs []string `json:"reference_ids,omitempty"`
}

// ResourceLoader resolves the decoded raster for an object. Implemented
// by the resource cache; loads may cross the network and must accept a
// context.
type ResourceLoader interface {
	Load(ctx context.Context, id, url string) (image.Image, error)
}

// NeedsResource reports whether objects of this source type are backed
// by a raster resource. Text and post-it objects carry their content by
// value and need no durable backing.
func (s SourceType) NeedsResource() bool {
	switch s {
	case SourceText, SourcePostit:
		return false
	default:
		return true
	}
}

// ToReplicated projects the runtime object into its replicated form.
// Returns nil when the object has no durable backing yet: pending
// uploads and generations are not shared until a remote copy exists.
// The projection is a pure function of the persisted fields.
func (o *BoardObject) ToReplicated() *ReplicatedObject {
	if o.SourceType.NeedsResource() && o.RemoteURL == "" {
		return nil
	}

	rep := &ReplicatedObject{
		ID:         o.ID,
		SourceType: o.SourceType,
		X:          o.X,
		Y:          o.Y,
		Width:      o.Width,
		Height:     o.Height,
		Rotation:   o.Rotation,
		ScaleX:     o.ScaleX,
		ScaleY:     o.ScaleY,
		ZIndex:     o.ZIndex,
		RemoteURL:  o.RemoteURL,
		RemoteKey:  o.RemoteKey,
		Text:       o.Text,
		FontFamily: o.FontFamily,
		FontSize:   o.FontSize,
		TextColor:  o.TextColor,
		FillColor:  o.FillColor,
		Prompt:     o.Prompt,
	}
	if len(o.ReferenceIDs) > 0 {
		rep.ReferenceIDs = append([]string(nil), o.ReferenceIDs...)
	}
	return rep
}

// Runtime is the pure inverse projection: it rebuilds the runtime form
// without resolving the backing resource. Callers that need the decoded
// raster use FromReplicated instead.
func (r *ReplicatedObject) Runtime() *BoardObject {
	obj := &BoardObject{
		ID:         r.ID,
		SourceType: r.SourceType,
		X:          r.X,
		Y:          r.Y,
		Width:      r.Width,
		Height:     r.Height,
		Rotation:   r.Rotation,
		ScaleX:     r.ScaleX,
		ScaleY:     r.ScaleY,
		ZIndex:     r.ZIndex,
		RemoteURL:  r.RemoteURL,
		RemoteKey:  r.RemoteKey,
		Text:       r.Text,
		FontFamily: r.FontFamily,
		FontSize:   r.FontSize,
		TextColor:  r.TextColor,
		FillColor:  r.FillColor,
		Prompt:     r.Prompt,
	}
	if len(r.ReferenceIDs) > 0 {
		obj.ReferenceIDs = append([]string(nil), r.ReferenceIDs...)
	}
	return obj
}

// FromReplicated rebuilds the runtime form and resolves its backing
// resource through the loader. Fails with the loader's error when the
// resource cannot be fetched or decoded.
func FromReplicated(ctx context.Context, rep *ReplicatedObject, loader ResourceLoader) (*BoardObject, error) {
	obj := rep.Runtime()
	if rep.RemoteURL == "" || loader == nil {
		return obj, nil
	}

	img, err := loader.Load(ctx, rep.ID, rep.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve resource for object %s: %w", rep.ID, err)
	}
	obj.Resource = img
	return obj, nil
}

// Clone returns a copy of the object that is safe to hand to callers
// outside the store lock. The resource handle is shared; decoded images
// are immutable.
func (o *BoardObject) Clone() *BoardObject {
	clone := *o
	if len(o.ReferenceIDs) > 0 {
		clone.ReferenceIDs = append([]string(nil), o.ReferenceIDs...)
	}
	return &clone
}

// Busy reports whether any advisory busy marker is set.
func (o *BoardObject) Busy() bool {
	return o.Uploading || o.Generating || o.Upscaling || o.RemovingBackground
}
