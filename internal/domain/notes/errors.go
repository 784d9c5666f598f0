package notes

import "errors"

// Domain errors for notes and categories.
var (
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidContent = errors.New("invalid note content")
	ErrSelfParent     = errors.New("category cannot be its own parent")
	ErrUnchanged      = errors.New("nothing to change")
	ErrDeleted        = errors.New("already deleted")
	ErrAlreadyPinned  = errors.New("note already pinned")
	ErrNotPinned      = errors.New("note not pinned")
)
