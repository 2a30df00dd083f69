package octree

import "fmt"

// SetVoxel sets the material of the cube of edge length cell containing the
// local point (x, y, z) in a chunk of edge length side, subdividing leaves on
// the way down and re-pruning the touched path on the way up. It returns the
// new root, which may differ from root. Internal nodes along the path are
// modified in place; Clone first to keep the original.
//
// Coordinates must lie in [0, side). cell must be a power-of-two fraction of
// side.
func SetVoxel(root *Node, side, cell, x, y, z float64, material uint8) (*Node, error) {
	if material == Sentinel {
		return nil, fmt.Errorf("%w: material %d is reserved", ErrInvalidMaterial, material)
	}
	if x < 0 || y < 0 || z < 0 || x >= side || y >= side || z >= side {
		return nil, fmt.Errorf("octree: point (%g, %g, %g) outside chunk of side %g", x, y, z, side)
	}
	if cell <= 0 || cell > side {
		return nil, fmt.Errorf("octree: invalid cell size %g", cell)
	}
	if root == nil {
		root = AirRoot()
	}
	return setVoxel(root, side, cell, x, y, z, material), nil
}

func setVoxel(n *Node, size, cell, x, y, z float64, material uint8) *Node {
	if size <= cell {
		return NewLeaf(n.Level, material)
	}
	if n.Kind == Leaf {
		if n.Material == material {
			return n
		}
		var children [8]*Node
		for i := range children {
			children[i] = NewLeaf(n.Level+1, n.Material)
		}
		n = &Node{Kind: Internal, Level: n.Level, Children: children}
	}

	half := size / 2
	ux, uy, uz := x >= half, y >= half, z >= half
	if ux {
		x -= half
	}
	if uy {
		y -= half
	}
	if uz {
		z -= half
	}
	i := ChildIndex(ux, uy, uz)
	n.Children[i] = setVoxel(n.Children[i], half, cell, x, y, z, material)

	if m, ok := uniformChildren(n); ok {
		return NewLeaf(n.Level, m)
	}
	return n
}
