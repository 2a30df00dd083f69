package octree

import "fmt"

const (
	// Air is the material id of empty space.
	Air uint8 = 0
	// MaxMaterial is the largest material id a leaf may carry.
	MaxMaterial uint8 = 254
	// Sentinel marks an internal node in the serialized stream. It is never
	// a valid leaf material.
	Sentinel uint8 = 255
)

// Kind distinguishes leaves from internal nodes.
type Kind uint8

const (
	// Leaf is a uniform volume of a single material.
	Leaf Kind = iota
	// Internal is a volume split into eight octants.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Node is one cube of a chunk octree.
//
// A leaf carries a material and no children. An internal node carries exactly
// eight children indexed by (x<<2 | y<<1 | z), where each bit selects the upper
// half of that axis. Level 0 is the chunk root.
type Node struct {
	Kind     Kind
	Level    int
	Material uint8
	Children [8]*Node
}

// NewLeaf returns a leaf at level with the given material.
func NewLeaf(level int, material uint8) *Node {
	return &Node{Kind: Leaf, Level: level, Material: material}
}

// NewInternal returns an internal node owning children. The children's levels
// are rewritten to level+1.
func NewInternal(level int, children [8]*Node) *Node {
	n := &Node{Kind: Internal, Level: level, Children: children}
	for _, c := range children {
		if c != nil {
			c.setLevel(level + 1)
		}
	}
	return n
}

// AirRoot returns the chunk root of an all-air chunk.
func AirRoot() *Node { return NewLeaf(0, Air) }

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.Kind == Leaf }

// IsSolid reports whether n is a leaf of a non-air material.
func (n *Node) IsSolid() bool { return n.Kind == Leaf && n.Material != Air }

// ChildIndex returns the octant index for the given upper-half flags.
func ChildIndex(x, y, z bool) int {
	idx := 0
	if x {
		idx |= 4
	}
	if y {
		idx |= 2
	}
	if z {
		idx |= 1
	}
	return idx
}

// ChildOffset returns the unit offsets (0 or 1) of octant i along x, y and z.
func ChildOffset(i int) (x, y, z int) {
	return (i >> 2) & 1, (i >> 1) & 1, i & 1
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Level: n.Level, Material: n.Material}
	if n.Kind == Internal {
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

func (n *Node) setLevel(level int) {
	n.Level = level
	if n.Kind == Internal {
		for _, c := range n.Children {
			if c != nil {
				c.setLevel(level + 1)
			}
		}
	}
}

// Equal reports whether a and b describe the same tree.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == Leaf {
		return a.Material == b.Material
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the children of the visited node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) || n.Kind != Internal {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Stats summarizes the shape of a tree.
type Stats struct {
	Nodes    int
	Leaves   int
	Internal int
	MaxDepth int
	// Materials counts leaves per material id.
	Materials map[uint8]int
}

// Collect returns the Stats of the tree rooted at n.
func Collect(n *Node) Stats {
	s := Stats{Materials: make(map[uint8]int)}
	if n == nil {
		return s
	}
	base := n.Level
	Walk(n, func(c *Node) bool {
		s.Nodes++
		if d := c.Level - base; d > s.MaxDepth {
			s.MaxDepth = d
		}
		if c.Kind == Leaf {
			s.Leaves++
			s.Materials[c.Material]++
		} else {
			s.Internal++
		}
		return true
	})
	return s
}

// Validate checks the arity invariant: leaves have no children and internal
// nodes have all eight.
func Validate(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrStructuralInvariant)
	}
	var err error
	Walk(n, func(c *Node) bool {
		if err != nil {
			return false
		}
		switch c.Kind {
		case Leaf:
			for _, ch := range c.Children {
				if ch != nil {
					err = fmt.Errorf("%w: leaf at level %d has children", ErrStructuralInvariant, c.Level)
					return false
				}
			}
		case Internal:
			for i, ch := range c.Children {
				if ch == nil {
					err = fmt.Errorf("%w: internal node at level %d missing child %d", ErrStructuralInvariant, c.Level, i)
					return false
				}
			}
		default:
			err = fmt.Errorf("%w: unknown %s at level %d", ErrStructuralInvariant, c.Kind, c.Level)
			return false
		}
		return true
	})
	return err
}

// IsPruned reports whether no internal node in the tree has eight leaf
// children of one identical material.
func IsPruned(n *Node) bool {
	pruned := true
	Walk(n, func(c *Node) bool {
		if _, ok := uniformChildren(c); ok {
			pruned = false
		}
		return pruned
	})
	return pruned
}
