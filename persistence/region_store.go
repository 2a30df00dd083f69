package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/internal/compress"
	"github.com/hupe1980/octoterra/region"
	"github.com/hupe1980/octoterra/resource"
)

// ErrNotFound is returned when no file exists for a region.
var ErrNotFound = errors.New("persistence: region not found")

// RegionStore reads and writes whole region files.
type RegionStore interface {
	// ReadRegion returns the uncompressed region file, or ErrNotFound.
	ReadRegion(ctx context.Context, key region.Key) ([]byte, error)
	// WriteRegion replaces the region file and returns the blob name used.
	WriteRegion(ctx context.Context, key region.Key, data []byte) (string, error)
	// DeleteRegion removes every stored form of the region file.
	DeleteRegion(ctx context.Context, key region.Key) error
	// ListRegions returns the keys of all stored regions of world name.
	ListRegions(ctx context.Context, name string) ([]region.Key, error)
}

// Options configures a BlobRegionStore.
type Options struct {
	// Compression is applied to written regions. Defaults to none.
	Compression compress.Kind
	// Resources throttles region IO. Nil means unthrottled.
	Resources *resource.Controller
	// Logger receives fallback and cleanup notices. Nil discards.
	Logger *slog.Logger
}

// BlobRegionStore implements RegionStore on a blobstore.BlobStore.
type BlobRegionStore struct {
	blobs  blobstore.BlobStore
	kind   compress.Kind
	rc     *resource.Controller
	logger *slog.Logger
}

var kinds = []compress.Kind{compress.None, compress.LZ4, compress.Zstd}

// NewBlobRegionStore returns a region store over blobs.
func NewBlobRegionStore(blobs blobstore.BlobStore, optFns ...func(o *Options)) *BlobRegionStore {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &BlobRegionStore{
		blobs:  blobs,
		kind:   opts.Compression,
		rc:     opts.Resources,
		logger: opts.Logger,
	}
}

// BlobName returns the blob name of key under compression kind.
func BlobName(key region.Key, kind compress.Kind) string {
	return key.FileName() + kind.Extension()
}

// Compression returns the kind used for writes.
func (s *BlobRegionStore) Compression() compress.Kind { return s.kind }

// ReadRegion tries the configured form first, then the others.
func (s *BlobRegionStore) ReadRegion(ctx context.Context, key region.Key) ([]byte, error) {
	order := append([]compress.Kind{s.kind}, kinds...)
	for i, kind := range order {
		if i > 0 && kind == s.kind {
			continue
		}
		name := BlobName(key, kind)
		raw, err := blobstore.ReadAll(ctx, s.blobs, name)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persistence: read %s: %w", name, err)
		}
		if err := s.rc.AcquireIO(ctx, len(raw)); err != nil {
			return nil, err
		}
		if kind != s.kind {
			s.logger.Info("region stored with other compression",
				"region", key.String(),
				"blob", name,
				"compression", kind.String(),
			)
		}
		data, err := compress.Decompress(raw, kind)
		if err != nil {
			return nil, fmt.Errorf("persistence: %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// WriteRegion stores data in the configured form and removes the other
// forms so that reads cannot pick up a stale copy.
func (s *BlobRegionStore) WriteRegion(ctx context.Context, key region.Key, data []byte) (string, error) {
	packed, err := compress.Compress(data, s.kind)
	if err != nil {
		return "", err
	}
	if err := s.rc.AcquireIO(ctx, len(packed)); err != nil {
		return "", err
	}

	name := BlobName(key, s.kind)
	if err := s.blobs.Put(ctx, name, packed); err != nil {
		return "", fmt.Errorf("persistence: write %s: %w", name, err)
	}

	for _, kind := range kinds {
		if kind == s.kind {
			continue
		}
		if err := s.blobs.Delete(ctx, BlobName(key, kind)); err != nil {
			s.logger.Warn("failed to remove stale region form",
				"region", key.String(),
				"blob", BlobName(key, kind),
				"error", err,
			)
		}
	}
	return name, nil
}

// DeleteRegion removes every stored form of key.
func (s *BlobRegionStore) DeleteRegion(ctx context.Context, key region.Key) error {
	for _, kind := range kinds {
		if err := s.blobs.Delete(ctx, BlobName(key, kind)); err != nil {
			return fmt.Errorf("persistence: delete %s: %w", BlobName(key, kind), err)
		}
	}
	return nil
}

// ListRegions returns the keys of the regions of world name, de-duplicated
// and in blob name order. Blobs of other worlds whose name shares the prefix are ignored.
func (s *BlobRegionStore) ListRegions(ctx context.Context, name string) ([]region.Key, error) {
	names, err := s.blobs.List(ctx, "R_"+name+"_")
	if err != nil {
		return nil, err
	}

	seen := make(map[region.Key]bool, len(names))
	var keys []region.Key
	for _, n := range names {
		if !isRegionBlob(n) {
			continue
		}
		key, err := region.ParseID(n)
		if err != nil || key.Name != name || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, nil
}

func isRegionBlob(name string) bool {
	for _, kind := range kinds {
		if strings.HasSuffix(name, region.FileExtension+kind.Extension()) {
			return true
		}
	}
	return false
}
