// ABOUTME: Stacking order rules for board objects
// ABOUTME: Reactions live in [10000, inf), everything else in [0, 9999]
package models

// ReactionZIndexBase is the floor of the reaction stacking namespace.
// Stickers, post-its, and text objects always render above images.
const ReactionZIndexBase = 10000

// MaxObjectZIndex is the ceiling of the non-reaction namespace.
const MaxObjectZIndex = ReactionZIndexBase - 1

// IsReaction reports whether the source type occupies the upper
// stacking namespace.
func (s SourceType) IsReaction() bool {
	switch s {
	case SourceSticker, SourcePostit, SourceText:
		return true
	default:
		return false
	}
}

// InZIndexNamespace reports whether z is valid for the source type.
func (s SourceType) InZIndexNamespace(z int) bool {
	if s.IsReaction() {
		return z >= ReactionZIndexBase
	}
	return z >= 0 && z <= MaxObjectZIndex
}

// NextZIndex returns the stacking key that places a new or promoted
// object of the given type on top of its namespace. The non-reaction
// namespace is capped at MaxObjectZIndex so promotion can never leak
// into the reaction range.
func NextZIndex(objects []*BoardObject, s SourceType) int {
	reaction := s.IsReaction()
	next := 0
	if reaction {
		next = ReactionZIndexBase
	}
	for _, obj := range objects {
		if obj.SourceType.IsReaction() != reaction {
			continue
		}
		if obj.ZIndex >= next {
			next = obj.ZIndex + 1
		}
	}
	if !reaction && next > MaxObjectZIndex {
		next = MaxObjectZIndex
	}
	return next
}
