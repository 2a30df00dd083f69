package octree

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a stream ends before the tree is complete.
	ErrTruncated = errors.New("octree: truncated stream")

	// ErrTrailingData reports bytes left over after a complete tree. It is
	// non-fatal: Decode still returns the decoded tree.
	ErrTrailingData = errors.New("octree: trailing data")

	// ErrStructuralInvariant is returned for trees that violate the node arity
	// rules, such as an internal node with a missing child.
	ErrStructuralInvariant = errors.New("octree: structural invariant violated")

	// ErrTooDeep is returned when a stream nests deeper than the decoder allows.
	ErrTooDeep = errors.New("octree: tree too deep")

	// ErrInvalidMaterial is returned when an edit uses the reserved sentinel.
	ErrInvalidMaterial = errors.New("octree: invalid material")
)

// TrailingDataError carries the number of unconsumed bytes.
type TrailingDataError struct {
	Consumed int
	Trailing int
}

func (e *TrailingDataError) Error() string {
	return fmt.Sprintf("octree: %d trailing bytes after %d consumed", e.Trailing, e.Consumed)
}

func (e *TrailingDataError) Unwrap() error { return ErrTrailingData }

// TruncatedError records where the stream ran out.
type TruncatedError struct {
	Offset int
	Length int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("octree: truncated stream at offset %d of %d", e.Offset, e.Length)
}

func (e *TruncatedError) Unwrap() error { return ErrTruncated }
