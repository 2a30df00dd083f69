// Package testutil provides testing utilities for octoterra.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded random source and generators for octrees and chunk
// points, plus a brute-force material lookup to check traversals against.
//
// # Random Trees
//
//	rng := testutil.NewRNG(seed)
//	root := rng.Tree(6, 0.4)           // depth <= 6, split probability 0.4
//	x, y, z := rng.Point(16)           // uniform in [0, 16)^3
//
// # Ground Truth
//
//	m := testutil.MaterialAt(root, 16, x, y, z)
package testutil
