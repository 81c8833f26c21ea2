// ABOUTME: Board document types and deterministic serialization helpers
// ABOUTME: Stable byte output makes structural change-detection reliable
package models

import (
	"encoding/json"
	"sort"
)

// Viewport is per-user view state. It is saved with the document for
// restore-on-open but never replicated between clients.
type Viewport struct {
	Zoom    float64 `json:"zoom"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// DefaultViewport returns the initial view for a fresh board.
func DefaultViewport() Viewport {
	return Viewport{Zoom: 1}
}

// BoardMeta is the collaborative board metadata, replicated between
// clients alongside the object list.
type BoardMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Document is the durable snapshot shape accepted by the persistence
// endpoint: the replicated object list plus metadata and viewport.
type Document struct {
	BoardID     string              `json:"board_id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Objects     []*ReplicatedObject `json:"objects"`
	Viewport    Viewport            `json:"viewport"`
}

// ProjectReplicated maps a runtime object list to its replicated form,
// excluding objects that have no durable backing yet.
func ProjectReplicated(objects []*BoardObject) []*ReplicatedObject {
	reps := make([]*ReplicatedObject, 0, len(objects))
	for _, obj := range objects {
		if rep := obj.ToReplicated(); rep != nil {
			reps = append(reps, rep)
		}
	}
	return reps
}

// MarshalReplicated serializes a replicated list with byte-stable
// output: the list is ordered by object ID before encoding so equal
// content always produces equal bytes, regardless of runtime list
// order.
func MarshalReplicated(reps []*ReplicatedObject) ([]byte, error) {
	sorted := make([]*ReplicatedObject, len(reps))
	copy(sorted, reps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return json.Marshal(sorted)
}

// UnmarshalReplicated decodes a replicated object list.
func UnmarshalReplicated(data []byte) ([]*ReplicatedObject, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var reps []*ReplicatedObject
	if err := json.Unmarshal(data, &reps); err != nil {
		return nil, err
	}
	return reps, nil
}

// Marshal serializes the document with the same ID-ordered object list
// as MarshalReplicated, so autosave can compare payloads byte-for-byte.
func (d *Document) Marshal() ([]byte, error) {
	stable := *d
	stable.Objects = make([]*ReplicatedObject, len(d.Objects))
	copy(stable.Objects, d.Objects)
	sort.Slice(stable.Objects, func(i, j int) bool { return stable.Objects[i].ID < stable.Objects[j].ID })
	return json.Marshal(&stable)
}

// UnmarshalDocument decodes a durable document snapshot.
func UnmarshalDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
