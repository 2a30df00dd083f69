package octree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChildIndex(t *testing.T) {
	require.Equal(t, 0, ChildIndex(false, false, false))
	require.Equal(t, 4, ChildIndex(true, false, false))
	require.Equal(t, 2, ChildIndex(false, true, false))
	require.Equal(t, 1, ChildIndex(false, false, true))
	require.Equal(t, 7, ChildIndex(true, true, true))

	for i := 0; i < 8; i++ {
		x, y, z := ChildOffset(i)
		require.Equal(t, i, ChildIndex(x == 1, y == 1, z == 1))
	}
}

func TestPrune_UniformChildren(t *testing.T) {
	var children [8]*Node
	for i := range children {
		children[i] = NewLeaf(1, 5)
	}
	root := Prune(&Node{Kind: Internal, Children: children})

	require.True(t, root.IsLeaf())
	require.Equal(t, uint8(5), root.Material)
	require.Equal(t, 0, root.Level)
}

func TestPrune_BottomUp(t *testing.T) {
	uniform := func(level int, m uint8) *Node {
		var children [8]*Node
		for i := range children {
			children[i] = NewLeaf(level+1, m)
		}
		return &Node{Kind: Internal, Level: level, Children: children}
	}
	var children [8]*Node
	for i := range children {
		children[i] = uniform(1, 2)
	}
	root := Prune(&Node{Kind: Internal, Children: children})
	require.True(t, root.IsLeaf())
	require.Equal(t, uint8(2), root.Material)
}

func TestPrune_MixedKept(t *testing.T) {
	var children [8]*Node
	for i := range children {
		children[i] = NewLeaf(1, 1)
	}
	children[3] = NewLeaf(1, 0)
	root := Prune(&Node{Kind: Internal, Children: children})
	require.False(t, root.IsLeaf())
	require.True(t, IsPruned(root))
}

func TestBuild_PlaneIsPruned(t *testing.T) {
	root := Build(16, func(x, y, z float64) uint8 {
		if y < 4 {
			return 1
		}
		return 0
	})
	require.NoError(t, Validate(root))
	require.True(t, IsPruned(root))

	// The plane splits the root at y = 4, so the two lower quadrant columns
	// subdivide once more and everything above stays coarse.
	require.False(t, root.IsLeaf())
	for i := 0; i < 8; i++ {
		_, y, _ := ChildOffset(i)
		if y == 1 {
			require.True(t, root.Children[i].IsLeaf())
			require.Equal(t, Air, root.Children[i].Material)
		} else {
			require.False(t, root.Children[i].IsLeaf())
		}
	}
}

func TestBuild_Uniform(t *testing.T) {
	root := Build(16, func(x, y, z float64) uint8 { return 4 })
	require.True(t, root.IsLeaf())
	require.Equal(t, uint8(4), root.Material)
}

func TestBuild_UniformShortcut(t *testing.T) {
	calls := 0
	root := Build(16, func(x, y, z float64) uint8 {
		calls++
		return 1
	}, func(o *BuildOptions) {
		o.Uniform = func(x, y, z, size float64) (uint8, bool) { return 2, true }
	})
	require.Equal(t, 0, calls)
	require.Equal(t, uint8(2), root.Material)
}

func TestSetVoxel(t *testing.T) {
	root, err := SetVoxel(AirRoot(), 16, 1, 3.5, 0.2, 15.9, 7)
	require.NoError(t, err)
	require.NoError(t, Validate(root))
	require.True(t, IsPruned(root))

	stats := Collect(root)
	require.Equal(t, 4, stats.MaxDepth)
	require.Equal(t, 1, stats.Materials[7])

	// Clearing the voxel collapses the path back to a single air leaf.
	root, err = SetVoxel(root, 16, 1, 3.5, 0.2, 15.9, Air)
	require.NoError(t, err)
	require.True(t, Equal(AirRoot(), root))
}

func TestSetVoxel_Rejects(t *testing.T) {
	_, err := SetVoxel(nil, 16, 1, 0, 0, 0, Sentinel)
	require.ErrorIs(t, err, ErrInvalidMaterial)

	_, err = SetVoxel(nil, 16, 1, 16, 0, 0, 1)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(AirRoot()))

	bad := &Node{Kind: Internal}
	require.ErrorIs(t, Validate(bad), ErrStructuralInvariant)

	leaf := NewLeaf(0, 1)
	leaf.Children[0] = NewLeaf(1, 1)
	require.ErrorIs(t, Validate(leaf), ErrStructuralInvariant)
}

func TestClone(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var children [8]*Node
	for i := range children {
		children[i] = randomTree(rng, 1, 4)
	}
	tree := &Node{Kind: Internal, Children: children}

	clone := tree.Clone()
	require.True(t, Equal(tree, clone))
	for i := range tree.Children {
		require.NotSame(t, tree.Children[i], clone.Children[i])
	}

	clone.Children[0] = NewLeaf(1, 99)
	require.False(t, Equal(tree, clone))
}

func TestNode_IsSolid(t *testing.T) {
	require.False(t, AirRoot().IsSolid())
	require.True(t, NewLeaf(0, 3).IsSolid())

	var children [8]*Node
	for i := range children {
		children[i] = NewLeaf(1, 3)
	}
	require.False(t, NewInternal(0, children).IsSolid())
}
