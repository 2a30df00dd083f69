package octoterra

import (
	"context"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"github.com/hupe1980/octoterra/accessor"
	"github.com/hupe1980/octoterra/field"
	"github.com/hupe1980/octoterra/grid"
	"github.com/hupe1980/octoterra/internal/dispatch"
	"github.com/hupe1980/octoterra/mesh"
	"github.com/hupe1980/octoterra/octree"
)

// SampleChunk builds the density grid of a chunk: GridResolution samples per
// axis starting at the chunk origin. Stored chunks are sampled from their
// tree, with the far faces taken from the neighbouring chunks. Chunks never
// written are sampled from the generator when one is set, and read as air
// otherwise.
func (w *World) SampleChunk(ctx context.Context, ref ChunkRef) (*grid.Grid, error) {
	root, err := w.ChunkRoot(ctx, ref.Region, ref.Index)
	if err != nil {
		return nil, err
	}
	origin := w.ChunkOrigin(ref)
	voxel := w.cfg.VoxelSizeMeters

	if root == nil && w.generator != nil {
		return grid.FromSampler(ctx, w.generator, origin, w.cfg.GridResolution(), voxel)
	}

	var neighborErr error
	g, err := grid.FromOctree(root, w.cfg.ChunkSideVoxels, origin, voxel, func(o *grid.OctreeOptions) {
		o.MaxDepth = w.cfg.MaxDepth()
		o.Neighbor = func(x, y, z int) (uint8, bool) {
			m, err := w.neighborVoxel(ctx, origin, x, y, z)
			if err != nil {
				if neighborErr == nil {
					neighborErr = err
				}
				return 0, false
			}
			return m, true
		}
	})
	if err != nil {
		return nil, err
	}
	if neighborErr != nil {
		return nil, neighborErr
	}
	return g, nil
}

// neighborVoxel returns the material of the voxel with chunk-local minimum
// corner (x, y, z) relative to a chunk at origin, resolved in whichever
// chunk holds it.
func (w *World) neighborVoxel(ctx context.Context, origin r3.Vector, x, y, z int) (uint8, error) {
	voxel := w.cfg.VoxelSizeMeters
	px := origin.X + (float64(x)+0.5)*voxel
	py := origin.Y + (float64(y)+0.5)*voxel
	pz := origin.Z + (float64(z)+0.5)*voxel

	loc := w.accessor.Locate(px, py, pz)
	root, err := w.ChunkRoot(ctx, loc.Region, loc.ChunkIndex)
	if err != nil {
		return 0, err
	}
	if root == nil {
		if w.generator != nil {
			return field.ChunkMaterial(w.generator, origin, voxel)(float64(x)+0.5, float64(y)+0.5, float64(z)+0.5), nil
		}
		return octree.Air, nil
	}
	res, err := accessor.Traverse(root, float64(w.cfg.ChunkSideVoxels), w.cfg.MaxDepth(), loc.LocalX, loc.LocalY, loc.LocalZ)
	if err != nil {
		return octree.Air, nil
	}
	return res.Material, nil
}

// MeshChunk extracts the surface of a chunk. It returns a nil mesh when the
// chunk holds no surface.
func (w *World) MeshChunk(ctx context.Context, ref ChunkRef) (*mesh.Mesh, error) {
	start := time.Now()
	m, err := w.meshChunk(ctx, ref)
	d := time.Since(start)

	var vertices, triangles int
	if m != nil {
		vertices, triangles = m.VertexCount(), m.TriangleCount()
	}
	w.logger.LogMesh(ctx, ref.Region, ref.Index, vertices, triangles, d, err)
	w.metrics.RecordMesh(triangles, d, err)
	return m, err
}

func (w *World) meshChunk(ctx context.Context, ref ChunkRef) (*mesh.Mesh, error) {
	g, err := w.SampleChunk(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !g.HasSurface() {
		return nil, nil
	}
	return mesh.Extract(ctx, g, func(o *mesh.Options) {
		o.Palette = w.opts.palette
	})
}

// MeshBatch is a set of chunks being meshed in the background.
type MeshBatch struct {
	d    *dispatch.Dispatcher[ChunkRef]
	done chan struct{}
	err  error

	mu       sync.Mutex
	pending  map[ChunkRef]bool
	canceled map[ChunkRef]bool
}

// StartMeshing meshes refs in the background, at most WithMeshWorkers
// chunks at a time. fn receives every non-empty mesh and may be called
// concurrently. Duplicate refs are meshed once.
func (w *World) StartMeshing(ctx context.Context, refs []ChunkRef, fn func(ChunkRef, *mesh.Mesh)) *MeshBatch {
	b := &MeshBatch{
		d:        dispatch.New[ChunkRef](ctx, w.opts.meshWorkers, w.opts.resources),
		done:     make(chan struct{}),
		pending:  make(map[ChunkRef]bool, len(refs)),
		canceled: make(map[ChunkRef]bool),
	}
	unique := make([]ChunkRef, 0, len(refs))
	for _, ref := range refs {
		if !b.pending[ref] {
			b.pending[ref] = true
			unique = append(unique, ref)
		}
	}

	go func() {
		defer close(b.done)
		for _, ref := range unique {
			if b.skip(ref) {
				continue
			}
			b.d.Go(ref, func(ctx context.Context) error {
				defer b.finish(ref)
				if b.isCanceled(ref) {
					return nil
				}
				m, err := w.MeshChunk(ctx, ref)
				if err != nil {
					return err
				}
				if m != nil && ctx.Err() == nil {
					fn(ref, m)
				}
				return nil
			})
		}
		b.err = b.d.Wait()
	}()
	return b
}

// Cancel stops meshing ref. It returns false when ref is not part of the
// batch or already finished.
func (b *MeshBatch) Cancel(ref ChunkRef) bool {
	b.mu.Lock()
	if !b.pending[ref] {
		b.mu.Unlock()
		return false
	}
	b.canceled[ref] = true
	b.mu.Unlock()

	b.d.Cancel(ref)
	return true
}

// Wait blocks until the batch finished and returns the first failure.
// Canceled chunks are not failures.
func (b *MeshBatch) Wait() error {
	<-b.done
	return b.err
}

func (b *MeshBatch) isCanceled(ref ChunkRef) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canceled[ref]
}

func (b *MeshBatch) skip(ref ChunkRef) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.canceled[ref] {
		delete(b.pending, ref)
		return true
	}
	return false
}

func (b *MeshBatch) finish(ref ChunkRef) {
	b.mu.Lock()
	delete(b.pending, ref)
	b.mu.Unlock()
}

// MeshChunks meshes refs concurrently and returns the non-empty meshes.
func (w *World) MeshChunks(ctx context.Context, refs []ChunkRef) (map[ChunkRef]*mesh.Mesh, error) {
	var mu sync.Mutex
	out := make(map[ChunkRef]*mesh.Mesh, len(refs))
	b := w.StartMeshing(ctx, refs, func(ref ChunkRef, m *mesh.Mesh) {
		mu.Lock()
		out[ref] = m
		mu.Unlock()
	})
	if err := b.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
