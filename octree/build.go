package octree

// MaterialFunc returns the material at the point (x, y, z), given in voxel
// units relative to the chunk origin.
type MaterialFunc func(x, y, z float64) uint8

// BuildOptions configures Build.
type BuildOptions struct {
	// MinSize is the edge length, in voxels, of the smallest cube Build
	// subdivides to. Defaults to 1 (one leaf per voxel at most).
	MinSize float64

	// Uniform optionally reports that a whole cube holds a single material,
	// letting Build stop subdividing early. The cube has minimum corner
	// (x, y, z) and the given edge length.
	Uniform func(x, y, z, size float64) (uint8, bool)
}

// Build generates a pruned chunk tree of edge length side by sampling fn at
// the centre of each smallest cube.
func Build(side float64, fn MaterialFunc, optFns ...func(o *BuildOptions)) *Node {
	opts := BuildOptions{MinSize: 1}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MinSize <= 0 {
		opts.MinSize = 1
	}
	b := builder{fn: fn, opts: opts}
	return b.build(0, 0, 0, 0, side)
}

type builder struct {
	fn   MaterialFunc
	opts BuildOptions
}

func (b *builder) build(level int, x, y, z, size float64) *Node {
	if b.opts.Uniform != nil {
		if m, ok := b.opts.Uniform(x, y, z, size); ok {
			return NewLeaf(level, clampMaterial(m))
		}
	}
	if size <= b.opts.MinSize {
		half := size / 2
		return NewLeaf(level, clampMaterial(b.fn(x+half, y+half, z+half)))
	}

	half := size / 2
	var children [8]*Node
	for i := range children {
		ox, oy, oz := ChildOffset(i)
		children[i] = b.build(level+1,
			x+float64(ox)*half, y+float64(oy)*half, z+float64(oz)*half, half)
	}
	if m, ok := sameLeaves(children); ok {
		return NewLeaf(level, m)
	}
	return &Node{Kind: Internal, Level: level, Children: children}
}

// Prune collapses, bottom-up, every internal node whose eight children are
// leaves of one material. It returns the (possibly replaced) root.
func Prune(n *Node) *Node {
	if n == nil || n.Kind != Internal {
		return n
	}
	for i, c := range n.Children {
		n.Children[i] = Prune(c)
	}
	if m, ok := uniformChildren(n); ok {
		return NewLeaf(n.Level, m)
	}
	return n
}

func uniformChildren(n *Node) (uint8, bool) {
	if n == nil || n.Kind != Internal {
		return 0, false
	}
	return sameLeaves(n.Children)
}

func sameLeaves(children [8]*Node) (uint8, bool) {
	first := children[0]
	if first == nil || first.Kind != Leaf {
		return 0, false
	}
	for _, c := range children[1:] {
		if c == nil || c.Kind != Leaf || c.Material != first.Material {
			return 0, false
		}
	}
	return first.Material, true
}

func clampMaterial(m uint8) uint8 {
	if m == Sentinel {
		return Air
	}
	return m
}
