package vectorstore

import "errors"

var (
	// ErrPersisterRequired indicates Save or Load was called on a store without a persister.
	ErrPersisterRequired = errors.New("persister is required")

	// ErrEmptyID indicates a blank identifier in a write.
	ErrEmptyID = errors.New("empty identifier")
)
