package octoterra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unsafe"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/octoterra/accessor"
	"github.com/hupe1980/octoterra/field"
	"github.com/hupe1980/octoterra/internal/cache"
	"github.com/hupe1980/octoterra/internal/compress"
	"github.com/hupe1980/octoterra/manifest"
	"github.com/hupe1980/octoterra/octree"
	"github.com/hupe1980/octoterra/persistence"
	"github.com/hupe1980/octoterra/region"
)

// generatorLipschitz bounds the density slope of generator fields, in
// density units per meter. Cubes farther from the surface than this allows
// are filled without sampling their interior.
const generatorLipschitz = 2

var nodeBytes = int64(unsafe.Sizeof(octree.Node{}))

// ChunkRef names one chunk of one region.
type ChunkRef struct {
	Region region.Key
	Index  int
}

func (r ChunkRef) String() string {
	return fmt.Sprintf("%s#%d", r.Region, r.Index)
}

type regionHandle struct {
	mu      sync.Mutex
	key     region.Key
	c       *region.Container
	evicted bool
}

// World is a voxel world made of regions of octree chunks. It loads regions
// on demand, caches decoded chunk trees and writes dirty regions back to its
// region store.
//
// A World is safe for concurrent use. Mutations of one region are
// serialized; different regions load and save in parallel.
type World struct {
	cfg       Config
	opts      options
	logger    *Logger
	metrics   MetricsCollector
	store     persistence.RegionStore
	manifests *manifest.Store
	roots     *cache.LRU[ChunkRef, *octree.Node]
	accessor  *accessor.Accessor
	generator field.Sampler
	loads     singleflight.Group

	mu      sync.Mutex
	regions map[region.Key]*regionHandle
	closed  bool

	manifestMu sync.Mutex
	manifest   *manifest.Manifest
}

// Open opens the world kept in the configured blob store, creating it when
// no manifest exists yet. Reopening with a different grid geometry fails
// with ErrConfigMismatch.
//
// Example:
//
//	store := blobstore.NewLocalStore("./world")
//	w, _ := octoterra.Open(ctx,
//	    octoterra.WithBlobStore(store),
//	    octoterra.WithGenerator(field.NewTerrain()),
//	)
//	defer w.Close()
func Open(ctx context.Context, optFns ...Option) (*World, error) {
	o := applyOptions(optFns)
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, _ := compress.ParseKind(cfg.Compression)

	store := o.regionStore
	if store == nil {
		store = persistence.NewBlobRegionStore(o.blobStore, func(po *persistence.Options) {
			po.Compression = kind
			po.Resources = o.resources
			po.Logger = o.logger.Logger
		})
	}

	manifests := manifest.NewStore(o.blobStore, func(mo *manifest.Options) {
		mo.Codec = o.codec
		mo.Logger = o.logger.Logger
	})
	m, err := manifests.Load(ctx)
	if err != nil {
		return nil, err
	}
	if m.ID > 0 {
		if err := cfg.checkManifest(m.World); err != nil {
			return nil, err
		}
	}
	m.World = cfg.manifestWorld()

	w := &World{
		cfg:       cfg,
		opts:      o,
		logger:    o.logger,
		metrics:   o.metricsCollector,
		store:     store,
		manifests: manifests,
		roots:     cache.NewLRU[ChunkRef, *octree.Node](o.chunkCacheBytes, treeCost, o.resources),
		regions:   make(map[region.Key]*regionHandle),
		manifest:  m,
	}
	if o.generator != nil {
		w.generator = thresholdSampler(o.generator, cfg.IsoSurfaceThreshold)
	}

	w.accessor, err = accessor.New(w, cfg.Geometry(), func(ao *accessor.Options) {
		ao.RegionName = cfg.DefaultRegionName
		ao.Logger = o.logger.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	w.logger.InfoContext(ctx, "world opened",
		"name", cfg.DefaultRegionName,
		"manifest", m.ID,
		"regions", len(m.Regions),
		"compression", kind.String(),
	)
	return w, nil
}

// Config returns the world configuration.
func (w *World) Config() Config { return w.cfg }

// Accessor returns the point query view of the world.
func (w *World) Accessor() *accessor.Accessor { return w.accessor }

// Locate resolves a world point, in meters, into the region grid.
func (w *World) Locate(x, y, z float64) accessor.Location {
	return w.accessor.Locate(x, y, z)
}

// Lookup returns the material at the world point (x, y, z). Chunks that were
// never written answer air.
func (w *World) Lookup(ctx context.Context, x, y, z float64) (accessor.Result, error) {
	if err := w.checkOpen(); err != nil {
		return accessor.Result{}, err
	}
	start := time.Now()
	res, err := w.accessor.Lookup(ctx, x, y, z)
	w.metrics.RecordLookup(time.Since(start), err)
	return res, translateError(err)
}

// ChunkOrigin returns the minimum corner of a chunk in meters.
func (w *World) ChunkOrigin(ref ChunkRef) r3.Vector {
	l := w.cfg.Layout()
	cx, cy, cz := l.Coords(ref.Index)
	cs := w.cfg.ChunkSizeMeters()
	return r3.Vector{
		X: float64(ref.Region.X*l.ChunksX+cx) * cs,
		Y: float64(ref.Region.Y*l.ChunksY+cy) * cs,
		Z: float64(ref.Region.Z*l.ChunksZ+cz) * cs,
	}
}

// ChunkRoot returns the decoded tree of a chunk, or nil when the chunk was
// never written. Streams that cannot be decoded are logged and read as air.
// The returned tree is shared and must not be modified.
//
// ChunkRoot implements accessor.ChunkProvider.
func (w *World) ChunkRoot(ctx context.Context, key region.Key, index int) (*octree.Node, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	if n, ok := w.roots.Get(ChunkRef{Region: key, Index: index}); ok {
		return n, nil
	}
	h, err := w.lockRegion(ctx, key)
	if err != nil {
		return nil, err
	}
	defer h.mu.Unlock()
	return w.rootLocked(ctx, h, index)
}

// UpdateChunk replaces a chunk with root. A nil root removes the chunk.
func (w *World) UpdateChunk(ctx context.Context, key region.Key, index int, root *octree.Node) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	var data []byte
	if root != nil {
		data = w.encodeChunk(key, index, root)
	}

	h, err := w.lockRegion(ctx, key)
	if err != nil {
		return err
	}
	err = w.storeLocked(h, index, data)
	h.mu.Unlock()

	w.logger.LogChunkUpdate(ctx, key, index, len(data), err)
	w.metrics.RecordChunkUpdate(len(data), err)
	return err
}

// Generate builds a chunk from the generator and stores it, replacing any
// previous content.
func (w *World) Generate(ctx context.Context, ref ChunkRef) (*octree.Node, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	root, err := w.buildChunk(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := w.UpdateChunk(ctx, ref.Region, ref.Index, root); err != nil {
		return nil, err
	}
	return root, nil
}

// GenerateRegion materializes every chunk of a region that is still absent.
// It returns the number of chunks generated.
func (w *World) GenerateRegion(ctx context.Context, key region.Key) (int, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if w.generator == nil {
		return 0, ErrNoGenerator
	}

	h, err := w.lockRegion(ctx, key)
	if err != nil {
		return 0, err
	}
	var missing []int
	for i := 0; i < w.cfg.TotalChunks(); i++ {
		if _, ok, _ := h.c.ChunkBytes(i); !ok {
			missing = append(missing, i)
		}
	}
	h.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.meshWorkers)
	for _, i := range missing {
		g.Go(func() error {
			_, err := w.Generate(gctx, ChunkRef{Region: key, Index: i})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(missing), nil
}

// SetVoxel sets the voxel containing the world point (x, y, z). A chunk that
// was never written starts from the generator, or from air without one.
func (w *World) SetVoxel(ctx context.Context, x, y, z float64, material uint8) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if material == octree.Sentinel {
		return fmt.Errorf("%w: material %d is reserved", ErrInvalidMaterial, material)
	}

	loc := w.accessor.Locate(x, y, z)
	h, err := w.lockRegion(ctx, loc.Region)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()

	root, err := w.rootLocked(ctx, h, loc.ChunkIndex)
	if err != nil {
		return err
	}
	switch {
	case root != nil:
		root = root.Clone()
	case w.generator != nil:
		if root, err = w.buildChunk(ctx, ChunkRef{Region: loc.Region, Index: loc.ChunkIndex}); err != nil {
			return err
		}
	default:
		root = octree.AirRoot()
	}

	side := float64(w.cfg.ChunkSideVoxels)
	root, err = octree.SetVoxel(root, side, 1,
		float64(loc.VoxelX)+0.5, float64(loc.VoxelY)+0.5, float64(loc.VoxelZ)+0.5, material)
	if err != nil {
		return err
	}
	data := w.encodeChunk(loc.Region, loc.ChunkIndex, root)
	err = w.storeLocked(h, loc.ChunkIndex, data)
	w.logger.LogChunkUpdate(ctx, loc.Region, loc.ChunkIndex, len(data), err)
	w.metrics.RecordChunkUpdate(len(data), err)
	return err
}

// SaveRegion writes a loaded region back if it changed and records it in
// the manifest. Regions that are not loaded are left alone.
func (w *World) SaveRegion(ctx context.Context, key region.Key) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	w.mu.Lock()
	h := w.regions[key]
	w.mu.Unlock()
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := w.saveLocked(ctx, h)
	return err
}

// Flush saves every dirty region. It attempts all of them and returns the
// combined failures.
func (w *World) Flush(ctx context.Context) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.flush(ctx)
}

func (w *World) flush(ctx context.Context) error {
	var (
		mu     sync.Mutex
		errs   error
		saved  int
		failed int
	)
	var g errgroup.Group
	g.SetLimit(w.opts.meshWorkers)
	for _, h := range w.loadedHandles() {
		g.Go(func() error {
			h.mu.Lock()
			ok, err := w.saveLocked(ctx, h)
			h.mu.Unlock()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failed++
				errs = multierr.Append(errs, err)
			case ok:
				saved++
			}
			return nil
		})
	}
	_ = g.Wait()
	w.logger.LogFlush(ctx, saved, failed)
	return errs
}

// Evict saves and unloads every loaded region for which keep returns false.
// A nil keep evicts all regions. Regions that fail to save stay loaded.
func (w *World) Evict(ctx context.Context, keep func(region.Key) bool) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	var errs error
	for _, h := range w.loadedHandles() {
		if keep != nil && keep(h.key) {
			continue
		}
		h.mu.Lock()
		if _, err := w.saveLocked(ctx, h); err != nil {
			h.mu.Unlock()
			errs = multierr.Append(errs, err)
			continue
		}
		h.evicted = true
		w.mu.Lock()
		if w.regions[h.key] == h {
			delete(w.regions, h.key)
		}
		w.mu.Unlock()
		key := h.key
		w.roots.Invalidate(func(ref ChunkRef) bool { return ref.Region == key })
		h.mu.Unlock()

		w.logger.DebugContext(ctx, "region evicted", "region", key.String())
	}
	return errs
}

// LoadedRegions returns the keys of the regions held in memory, sorted.
func (w *World) LoadedRegions() []region.Key {
	handles := w.loadedHandles()
	keys := make([]region.Key, len(handles))
	for i, h := range handles {
		keys[i] = h.key
	}
	return keys
}

// StoredRegions returns the keys of all regions of the named dimension in
// the region store.
func (w *World) StoredRegions(ctx context.Context, name string) ([]region.Key, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	keys, err := w.store.ListRegions(ctx, name)
	return keys, translateError(err)
}

// Manifest returns a copy of the live manifest.
func (w *World) Manifest() *manifest.Manifest {
	w.manifestMu.Lock()
	defer w.manifestMu.Unlock()
	return w.manifest.Clone()
}

// VerifyRegion checks a stored region against its manifest entry and the
// canonical region layout. Failures are reported as *ErrRegionCorrupt.
func (w *World) VerifyRegion(ctx context.Context, key region.Key) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	data, err := w.store.ReadRegion(ctx, key)
	if err != nil {
		if corruption(err) {
			return &ErrRegionCorrupt{Key: key, cause: err}
		}
		return translateError(err)
	}
	if entry, ok := w.manifestRegion(key); ok {
		if err := entry.Verify(data); err != nil {
			return &ErrRegionCorrupt{Key: key, cause: err}
		}
	}
	if err := region.Verify(w.cfg.Layout(), data); err != nil {
		return &ErrRegionCorrupt{Key: key, cause: err}
	}
	return nil
}

// Close flushes all dirty regions and releases cached chunks. Close is
// idempotent; operations after Close return ErrClosed.
func (w *World) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	ctx := context.Background()
	err := w.flush(ctx)
	w.roots.Purge()

	hits, misses := w.roots.Stats()
	w.logger.InfoContext(ctx, "world closed",
		"chunk_cache_hits", hits,
		"chunk_cache_misses", misses,
	)
	return err
}

func (w *World) checkOpen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return nil
}

func (w *World) loadedHandles() []*regionHandle {
	w.mu.Lock()
	handles := make([]*regionHandle, 0, len(w.regions))
	for _, h := range w.regions {
		handles = append(handles, h)
	}
	w.mu.Unlock()
	sort.Slice(handles, func(i, j int) bool {
		a, b := handles[i].key, handles[j].key
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
	})
	return handles
}

// lockRegion returns the loaded handle of key with its lock held.
func (w *World) lockRegion(ctx context.Context, key region.Key) (*regionHandle, error) {
	for {
		h, err := w.region(ctx, key)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		if !h.evicted {
			return h, nil
		}
		h.mu.Unlock()
	}
}

// region returns the handle of key, loading the region on first use.
// Concurrent loads of one key share a single read.
func (w *World) region(ctx context.Context, key region.Key) (*regionHandle, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	h := w.regions[key]
	w.mu.Unlock()
	if h != nil {
		return h, nil
	}

	v, err, _ := w.loads.Do(key.ID(), func() (any, error) {
		w.mu.Lock()
		if h := w.regions[key]; h != nil {
			w.mu.Unlock()
			return h, nil
		}
		w.mu.Unlock()

		h, err := w.loadRegion(ctx, key)
		if err != nil {
			return nil, err
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if existing := w.regions[key]; existing != nil {
			return existing, nil
		}
		w.regions[key] = h
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*regionHandle), nil
}

func (w *World) loadRegion(ctx context.Context, key region.Key) (*regionHandle, error) {
	start := time.Now()
	data, err := w.store.ReadRegion(ctx, key)
	switch {
	case err == nil:
		if entry, ok := w.manifestRegion(key); ok {
			if verr := entry.Verify(data); verr != nil {
				// Records are bounds checked on load, so a mismatching blob
				// still yields every chunk that fits.
				w.logger.LogRegionCorrupt(ctx, key, verr)
				w.metrics.RecordCorruption()
			}
		}
	case errors.Is(err, persistence.ErrNotFound):
		data = nil
	case corruption(err):
		w.logger.LogRegionCorrupt(ctx, key, err)
		w.metrics.RecordCorruption()
		data = nil
	default:
		d := time.Since(start)
		w.logger.LogRegionLoad(ctx, key, 0, 0, d, err)
		w.metrics.RecordRegionLoad(0, d, err)
		return nil, translateError(err)
	}

	c, report, err := region.Load(w.cfg.Layout(), data, func(ro *region.Options) {
		ro.Logger = w.logger.WithRegion(key).Logger
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < report.Skipped; i++ {
		w.metrics.RecordCorruption()
	}

	d := time.Since(start)
	w.logger.LogRegionLoad(ctx, key, len(data), report.Present, d, nil)
	w.metrics.RecordRegionLoad(len(data), d, nil)
	return &regionHandle{key: key, c: c}, nil
}

// rootLocked decodes chunk index of h, consulting the cache first. h.mu must
// be held.
func (w *World) rootLocked(ctx context.Context, h *regionHandle, index int) (*octree.Node, error) {
	ref := ChunkRef{Region: h.key, Index: index}
	if n, ok := w.roots.Get(ref); ok {
		return n, nil
	}
	data, ok, err := h.c.ChunkBytes(index)
	if err != nil {
		return nil, translateError(err)
	}
	if !ok {
		return nil, nil
	}

	root, replaced := octree.DecodeOrAir(data, w.logger.WithRegion(h.key).WithChunk(index).Logger)
	if replaced {
		w.metrics.RecordCorruption()
	}
	w.roots.Set(ref, root)
	return root, nil
}

// encodeChunk serializes root for storage. A malformed tree is stored as a
// single air leaf so the write still goes through.
func (w *World) encodeChunk(key region.Key, index int, root *octree.Node) []byte {
	data, replaced := octree.EncodeOrAir(root, w.logger.WithRegion(key).WithChunk(index).Logger)
	if replaced {
		w.metrics.RecordCorruption()
	}
	return data
}

// storeLocked replaces the stream of chunk index. h.mu must be held.
func (w *World) storeLocked(h *regionHandle, index int, data []byte) error {
	var err error
	if len(data) == 0 {
		err = h.c.ClearChunk(index)
	} else {
		err = h.c.SetChunkBytes(index, data, time.Now())
	}
	if err != nil {
		return translateError(err)
	}
	w.roots.Remove(ChunkRef{Region: h.key, Index: index})
	return nil
}

// saveLocked persists h when dirty and reports whether it wrote. h.mu must
// be held.
func (w *World) saveLocked(ctx context.Context, h *regionHandle) (bool, error) {
	if !h.c.Dirty() {
		return false, nil
	}
	start := time.Now()
	dirty := h.c.DirtyChunks()
	present := h.c.PresentCount()
	data := h.c.SerializeFull()

	var blob string
	var err error
	if present == 0 {
		err = w.store.DeleteRegion(ctx, h.key)
		if err == nil {
			err = w.commitManifest(ctx, func(m *manifest.Manifest) bool {
				return m.RemoveRegion(h.key)
			})
		}
	} else {
		blob, err = w.store.WriteRegion(ctx, h.key, data)
		if err == nil {
			entry := manifest.NewRegion(h.key, blob, data, present, time.Now())
			err = w.commitManifest(ctx, func(m *manifest.Manifest) bool {
				m.PutRegion(entry)
				return true
			})
		}
	}

	d := time.Since(start)
	if err != nil {
		h.c.MarkDirty(dirty...)
		err = fmt.Errorf("save region %s: %w", h.key, translateError(err))
	}
	w.logger.LogRegionSave(ctx, h.key, blob, len(data), d, err)
	w.metrics.RecordRegionSave(len(data), d, err)
	return err == nil, err
}

// commitManifest applies edit to a copy of the live manifest and saves it
// when edit reports a change.
func (w *World) commitManifest(ctx context.Context, edit func(m *manifest.Manifest) bool) error {
	w.manifestMu.Lock()
	defer w.manifestMu.Unlock()

	next := w.manifest.Clone()
	if !edit(next) {
		return nil
	}
	if err := w.manifests.Save(ctx, next); err != nil {
		return err
	}
	w.manifest = next
	return nil
}

func (w *World) manifestRegion(key region.Key) (manifest.Region, bool) {
	w.manifestMu.Lock()
	defer w.manifestMu.Unlock()
	return w.manifest.Region(key)
}

// buildChunk samples the generator into a pruned chunk tree.
func (w *World) buildChunk(ctx context.Context, ref ChunkRef) (*octree.Node, error) {
	if w.generator == nil {
		return nil, ErrNoGenerator
	}
	if total := w.cfg.TotalChunks(); ref.Index < 0 || ref.Index >= total {
		return nil, &ErrChunkIndex{Index: ref.Index, Total: total, cause: region.ErrIndexOutOfRange}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	origin := w.ChunkOrigin(ref)
	voxel := w.cfg.VoxelSizeMeters
	return octree.Build(float64(w.cfg.ChunkSideVoxels),
		field.ChunkMaterial(w.generator, origin, voxel),
		func(o *octree.BuildOptions) {
			o.Uniform = field.ChunkUniform(w.generator, origin, voxel, generatorLipschitz)
		},
	), nil
}

func treeCost(n *octree.Node) int64 {
	var count int64
	octree.Walk(n, func(*octree.Node) bool {
		count++
		return true
	})
	return count * nodeBytes
}

// thresholdSampler moves the surface of s to density t.
func thresholdSampler(s field.Sampler, t float64) field.Sampler {
	if t == 0 {
		return s
	}
	return field.SamplerFunc(func(x, y, z float64) field.Sample {
		smp := s.Sample(x, y, z)
		smp.Density -= t
		return smp
	})
}
