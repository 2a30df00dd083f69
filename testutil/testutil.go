package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/octoterra/octree"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0,1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Material returns a random leaf material, air included. Air comes up about
// a third of the time.
func (r *RNG) Material() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.materialLocked()
}

func (r *RNG) materialLocked() uint8 {
	if r.rand.Intn(3) == 0 {
		return octree.Air
	}
	return uint8(1 + r.rand.Intn(int(octree.MaxMaterial)))
}

// Point returns a point uniformly distributed in [0, side)^3.
func (r *RNG) Point(side float64) (x, y, z float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64() * side, r.rand.Float64() * side, r.rand.Float64() * side
}

// Points returns n points uniformly distributed in [0, side)^3.
func (r *RNG) Points(n int, side float64) [][3]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][3]float64, n)
	for i := range out {
		out[i] = [3]float64{r.rand.Float64() * side, r.rand.Float64() * side, r.rand.Float64() * side}
	}
	return out
}

// Tree generates a random chunk octree no deeper than maxDepth. Every node
// above maxDepth splits with probability split. The result is not pruned:
// an internal node may hold eight equal leaves.
func (r *RNG) Tree(maxDepth int, split float64) *octree.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.treeLocked(0, maxDepth, split)
}

func (r *RNG) treeLocked(level, maxDepth int, split float64) *octree.Node {
	if level >= maxDepth || r.rand.Float64() >= split {
		return octree.NewLeaf(level, r.materialLocked())
	}
	var children [8]*octree.Node
	for i := range children {
		children[i] = r.treeLocked(level+1, maxDepth, split)
	}
	return octree.NewInternal(level, children)
}

// PrunedTree is like Tree but collapses uniform subtrees, yielding the
// canonical form stored chunks have.
func (r *RNG) PrunedTree(maxDepth int, split float64) *octree.Node {
	return octree.Prune(r.Tree(maxDepth, split))
}

// MaterialAt returns the material of the leaf containing the local point
// (x, y, z) in a chunk of edge length side. It checks every child box
// explicitly instead of using child index arithmetic, so it can serve as
// ground truth for traversal code. Internal nodes with a nil child on the
// path read as air.
func MaterialAt(root *octree.Node, side, x, y, z float64) uint8 {
	n := root
	var ox, oy, oz float64
	size := side
	for n != nil && n.Kind == octree.Internal {
		half := size / 2
		var next *octree.Node
		for i, c := range n.Children {
			dx, dy, dz := octree.ChildOffset(i)
			cx, cy, cz := ox+float64(dx)*half, oy+float64(dy)*half, oz+float64(dz)*half
			if x >= cx && x < cx+half && y >= cy && y < cy+half && z >= cz && z < cz+half {
				next = c
				ox, oy, oz = cx, cy, cz
				break
			}
		}
		n = next
		size = half
	}
	if n == nil {
		return octree.Air
	}
	return n.Material
}
