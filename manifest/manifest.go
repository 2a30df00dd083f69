// Package manifest records the state of a saved world: its configuration
// and, for every saved region, the blob that holds it with its size and
// checksum.
//
// Manifests are versioned blobs named MANIFEST-<id>.json. A small CURRENT
// blob names the live one, so a save becomes visible with a single write.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/codec"
	"github.com/hupe1980/octoterra/internal/hash"
	"github.com/hupe1980/octoterra/region"
)

const (
	// CurrentName is the blob naming the live manifest.
	CurrentName = "CURRENT"
	// FilePrefix starts every manifest blob name.
	FilePrefix = "MANIFEST-"
	// CurrentVersion is the manifest format version.
	CurrentVersion = 1
)

var (
	// ErrUnsupportedVersion is returned for manifests of another format version.
	ErrUnsupportedVersion = errors.New("manifest: unsupported version")
	// ErrChecksumMismatch is returned when region bytes disagree with the
	// size or checksum recorded for them.
	ErrChecksumMismatch = errors.New("manifest: region checksum mismatch")
)

// World is the configuration a world was created with. Reopening a world
// with a different geometry would misread its regions.
type World struct {
	Name        string  `json:"name"`
	VoxelSize   float64 `json:"voxel_size"`
	ChunkSide   int     `json:"chunk_side"`
	MaxDepth    int     `json:"max_depth"`
	ChunksX     int     `json:"chunks_x"`
	ChunksY     int     `json:"chunks_y"`
	ChunksZ     int     `json:"chunks_z"`
	Compression string  `json:"compression"`
	Seed        int64   `json:"seed"`
}

// Region describes one saved region.
type Region struct {
	Name    string    `json:"name"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	Z       int       `json:"z"`
	Blob    string    `json:"blob"`
	Size    int64     `json:"size"`
	CRC32C  uint32    `json:"crc32c"`
	Chunks  int       `json:"chunks"`
	SavedAt time.Time `json:"saved_at"`
}

// Key returns the region key.
func (r Region) Key() region.Key {
	return region.Key{Name: r.Name, X: r.X, Y: r.Y, Z: r.Z}
}

// Verify checks data against the recorded size and checksum.
func (r Region) Verify(data []byte) error {
	if int64(len(data)) != r.Size {
		return fmt.Errorf("%w: %s has %d bytes, manifest records %d", ErrChecksumMismatch, r.Blob, len(data), r.Size)
	}
	if sum := hash.CRC32C(data); sum != r.CRC32C {
		return fmt.Errorf("%w: %s crc32c %08x, manifest records %08x", ErrChecksumMismatch, r.Blob, sum, r.CRC32C)
	}
	return nil
}

// NewRegion describes data as saved under blob for key.
func NewRegion(key region.Key, blob string, data []byte, chunks int, savedAt time.Time) Region {
	return Region{
		Name:    key.Name,
		X:       key.X,
		Y:       key.Y,
		Z:       key.Z,
		Blob:    blob,
		Size:    int64(len(data)),
		CRC32C:  hash.CRC32C(data),
		Chunks:  chunks,
		SavedAt: savedAt.UTC(),
	}
}

// Manifest is one version of the world state.
type Manifest struct {
	Version int       `json:"version"`
	ID      uint64    `json:"id"`
	Codec   string    `json:"codec"`
	SavedAt time.Time `json:"saved_at"`
	World   World     `json:"world"`
	Regions []Region  `json:"regions"`
}

// Region returns the entry for key.
func (m *Manifest) Region(key region.Key) (Region, bool) {
	i, ok := m.find(key)
	if !ok {
		return Region{}, false
	}
	return m.Regions[i], true
}

// PutRegion inserts or replaces the entry for r's key. Entries stay sorted
// by key.
func (m *Manifest) PutRegion(r Region) {
	i, ok := m.find(r.Key())
	if ok {
		m.Regions[i] = r
		return
	}
	m.Regions = append(m.Regions, Region{})
	copy(m.Regions[i+1:], m.Regions[i:])
	m.Regions[i] = r
}

// RemoveRegion drops the entry for key and reports whether it existed.
func (m *Manifest) RemoveRegion(key region.Key) bool {
	i, ok := m.find(key)
	if ok {
		m.Regions = append(m.Regions[:i], m.Regions[i+1:]...)
	}
	return ok
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Regions = append([]Region(nil), m.Regions...)
	return &c
}

func (m *Manifest) find(key region.Key) (int, bool) {
	i := sort.Search(len(m.Regions), func(i int) bool {
		return !less(m.Regions[i].Key(), key)
	})
	return i, i < len(m.Regions) && m.Regions[i].Key() == key
}

func less(a, b region.Key) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	return a.X < b.X
}

// Options configures a Store.
type Options struct {
	// Codec encodes new manifests. Defaults to codec.Default.
	Codec codec.Codec
	// Keep is how many superseded manifests survive a save. Defaults to 2.
	Keep int
	// Logger receives cleanup failures. Nil discards.
	Logger *slog.Logger
}

// Store loads and saves manifests in a blob store.
type Store struct {
	blobs  blobstore.BlobStore
	codec  codec.Codec
	keep   int
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a manifest store over blobs.
func NewStore(blobs blobstore.BlobStore, optFns ...func(o *Options)) *Store {
	opts := Options{Codec: codec.Default, Keep: 2}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Keep < 0 {
		opts.Keep = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{blobs: blobs, codec: opts.Codec, keep: opts.Keep, logger: opts.Logger}
}

func fileName(id uint64) string {
	return fmt.Sprintf("%s%06d.json", FilePrefix, id)
}

// Load returns the live manifest, or an empty one when none was saved yet.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := blobstore.ReadAll(ctx, s.blobs, CurrentName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return &Manifest{Version: CurrentVersion, Codec: s.codec.Name()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", CurrentName, err)
	}

	name := strings.TrimSpace(string(current))
	data, err := blobstore.ReadAll(ctx, s.blobs, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", name, err)
	}

	var m Manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", name, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, m.Version, CurrentVersion)
	}
	if m.Codec != "" {
		if _, err := codec.Lookup(m.Codec); err != nil {
			return nil, fmt.Errorf("manifest: %s: %w", name, err)
		}
	}
	return &m, nil
}

// Save writes m as the next manifest version and points CURRENT at it. m's
// ID, Version, Codec and SavedAt are updated in place. Once CURRENT is
// written the save has succeeded; failing to delete old manifests is only
// logged.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.Codec = s.codec.Name()
	m.ID++
	m.SavedAt = time.Now().UTC()

	data, err := s.codec.Marshal(m)
	if err != nil {
		m.ID--
		return fmt.Errorf("manifest: encode: %w", err)
	}

	name := fileName(m.ID)
	if err := s.blobs.Put(ctx, name, data); err != nil {
		m.ID--
		return fmt.Errorf("manifest: write %s: %w", name, err)
	}
	if err := s.blobs.Put(ctx, CurrentName, []byte(name)); err != nil {
		m.ID--
		return fmt.Errorf("manifest: write %s: %w", CurrentName, err)
	}

	if err := s.prune(ctx, m.ID); err != nil {
		s.logger.WarnContext(ctx, "manifest prune failed",
			"live", name,
			"error", err,
		)
	}
	return nil
}

// prune deletes manifests older than the newest keep superseded ones.
func (s *Store) prune(ctx context.Context, live uint64) error {
	names, err := s.blobs.List(ctx, FilePrefix)
	if err != nil {
		return err
	}
	var oldest uint64
	if live > uint64(s.keep) {
		oldest = live - uint64(s.keep)
	}
	for _, name := range names {
		var id uint64
		if _, err := fmt.Sscanf(name, FilePrefix+"%d.json", &id); err != nil {
			continue
		}
		if id < oldest {
			if derr := s.blobs.Delete(ctx, name); derr != nil {
				err = errors.Join(err, fmt.Errorf("delete %s: %w", name, derr))
			}
		}
	}
	return err
}
