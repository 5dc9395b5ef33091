package prompt

import (
	"errors"
	"fmt"
)

var (
	// ErrConflictingContext is returned when two contexts carry unequal values
	// for a key that declares no merge function.
	ErrConflictingContext = errors.New("prompt: conflicting context")
	// ErrIllegal is returned when a payload cannot take part in an operation,
	// such as stripping an image to text. ErrIllegalMerge and
	// ErrIllegalStructure wrap it.
	ErrIllegal = errors.New("prompt: illegal")
	// ErrIllegalMerge is returned when two adjacent degenerate components of
	// the same kind cannot be combined.
	ErrIllegalMerge = fmt.Errorf("%w merge", ErrIllegal)
	// ErrIllegalStructure is returned for malformed literals, for example more
	// than one function call in a single degenerate sequence.
	ErrIllegalStructure = fmt.Errorf("%w structure", ErrIllegal)
	// ErrUnimplemented marks operations with no defined behavior for a payload
	// kind: encoding non-text payloads and resolving images.
	ErrUnimplemented = errors.New("prompt: unimplemented")
	// ErrUnresolved is returned when an async-only value is read synchronously.
	ErrUnresolved = errors.New("prompt: value requires async resolution")
)
