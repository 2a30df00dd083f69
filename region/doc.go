// Package region implements the region file container.
//
// A region groups the chunks of a fixed grid (8x2x8 by default) into one blob:
//
//	header   := record*TotalChunks
//	record   := offset:u32 size:u32 timestamp:i64   (little endian, 16 bytes)
//	data     := chunk streams in chunk-index order
//
// A zero record marks a chunk that was never materialized. The container
// knows nothing about the octree encoding of its chunk streams.
package region
