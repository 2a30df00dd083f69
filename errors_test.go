package octoterra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/internal/compress"
	"github.com/hupe1980/octoterra/manifest"
	"github.com/hupe1980/octoterra/persistence"
	"github.com/hupe1980/octoterra/region"
)

func TestTranslateError(t *testing.T) {
	require.NoError(t, translateError(nil))

	err := translateError(fmt.Errorf("read: %w", persistence.ErrNotFound))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	err = translateError(blobstore.ErrNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	err = translateError(&region.IndexError{Index: 300, Total: 128})
	var ce *ErrChunkIndex
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 300, ce.Index)
	assert.ErrorIs(t, err, region.ErrIndexOutOfRange)

	other := errors.New("other")
	assert.Equal(t, other, translateError(other))
}

func TestErrRegionCorrupt(t *testing.T) {
	cause := fmt.Errorf("%w: crc", manifest.ErrChecksumMismatch)
	err := error(&ErrRegionCorrupt{Key: region.Key{Name: "Overworld", X: 1}, cause: cause})

	assert.Contains(t, err.Error(), "Overworld(1,0,0)")
	assert.ErrorIs(t, err, manifest.ErrChecksumMismatch)
}

func TestCorruption(t *testing.T) {
	assert.True(t, corruption(fmt.Errorf("x: %w", compress.ErrCorrupt)))
	assert.True(t, corruption(manifest.ErrChecksumMismatch))
	assert.True(t, corruption(region.ErrInvariant))
	assert.False(t, corruption(persistence.ErrNotFound))
}
