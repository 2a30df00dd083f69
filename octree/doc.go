// Package octree implements the sparse per-chunk voxel tree and its byte codec.
//
// A chunk is a cube subdivided recursively into octants. Uniform volumes are
// stored as a single leaf, so a correctly built tree never contains an
// internal node whose eight children are leaves of the same material.
//
// # Wire Format
//
// Trees serialize in pre-order:
//
//	leaf      := material            (one byte, 0..254)
//	internal  := 0xFF child*8        (children in index order)
//
// Child index i has x = bit 2, y = bit 1, z = bit 0. An empty stream is an
// all-air chunk.
package octree
