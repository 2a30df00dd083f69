package octoterra

import (
	"errors"
	"fmt"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/internal/compress"
	"github.com/hupe1980/octoterra/manifest"
	"github.com/hupe1980/octoterra/octree"
	"github.com/hupe1980/octoterra/persistence"
	"github.com/hupe1980/octoterra/region"
)

var (
	// ErrClosed is returned by operations on a closed World.
	ErrClosed = errors.New("octoterra: world is closed")

	// ErrInvalidConfig is returned for configurations that cannot describe a
	// world grid.
	ErrInvalidConfig = errors.New("octoterra: invalid config")

	// ErrConfigMismatch is returned when a world is reopened with a geometry
	// other than the one it was created with.
	ErrConfigMismatch = errors.New("octoterra: config does not match stored world")

	// ErrNoGenerator is returned by Generate when the World has no generator.
	ErrNoGenerator = errors.New("octoterra: no generator configured")

	// ErrNotFound is returned when a region was never saved.
	ErrNotFound = errors.New("octoterra: not found")

	// ErrInvalidMaterial is returned when an edit uses the reserved internal
	// node marker as a material.
	ErrInvalidMaterial = octree.ErrInvalidMaterial
)

// ErrRegionCorrupt reports a stored region whose bytes fail verification.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrRegionCorrupt struct {
	Key   region.Key
	cause error
}

func (e *ErrRegionCorrupt) Error() string {
	return fmt.Sprintf("region %s is corrupt: %v", e.Key, e.cause)
}

func (e *ErrRegionCorrupt) Unwrap() error { return e.cause }

// ErrChunkIndex indicates a chunk index outside the region layout.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrChunkIndex struct {
	Index int
	Total int
	cause error
}

func (e *ErrChunkIndex) Error() string {
	return fmt.Sprintf("chunk index %d out of range [0, %d)", e.Index, e.Total)
}

func (e *ErrChunkIndex) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var ie *region.IndexError
	if errors.As(err, &ie) {
		return &ErrChunkIndex{Index: ie.Index, Total: ie.Total, cause: err}
	}

	return err
}

// corruption reports whether err describes unreadable stored bytes rather
// than a failure to reach them.
func corruption(err error) bool {
	return errors.Is(err, compress.ErrCorrupt) ||
		errors.Is(err, manifest.ErrChecksumMismatch) ||
		errors.Is(err, region.ErrInvariant)
}
