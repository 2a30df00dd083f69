// Package octoterra stores voxel terrain as sparse octrees and turns it into
// triangle meshes.
//
// The world is cut into regions of chunks. Every chunk is an octree whose
// leaves carry a material id; a region keeps the serialized trees of its
// chunks in one file behind a fixed index table. Regions live in a blob
// store: a local directory, S3 or MinIO.
//
// # Quick Start
//
// Local mode:
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./world")
//	w, _ := octoterra.Open(ctx,
//	    octoterra.WithBlobStore(store),
//	    octoterra.WithGenerator(field.NewTerrain()),
//	    octoterra.WithCompression("zstd"),
//	)
//	defer w.Close()
//
// Cloud mode:
//
//	s3Store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("worlds/alpha/"))
//	w, _ := octoterra.Open(ctx, octoterra.WithBlobStore(s3Store))
//
// # Reading and Editing
//
//	res, _ := w.Lookup(ctx, 12.3, 4.5, -7.8)   // material at a world point
//	_ = w.SetVoxel(ctx, 12.3, 4.5, -7.8, material.Rock)
//	_ = w.Flush(ctx)                          // write dirty regions
//
// Chunks that were never written read as air in Lookup. With a generator,
// Generate and GenerateRegion materialize them, and SetVoxel starts its edit
// from the generated tree.
//
// # Meshing
//
//	loc := w.Locate(12.3, 4.5, -7.8)
//	ref := octoterra.ChunkRef{Region: loc.Region, Index: loc.ChunkIndex}
//	m, _ := w.MeshChunk(ctx, ref)   // nil when the chunk holds no surface
//
// MeshChunks and StartMeshing run many chunks on a bounded worker pool;
// StartMeshing returns a MeshBatch whose chunks can be canceled one by one.
//
// # Storage Layout
//
// A world directory or bucket holds:
//
//	CURRENT                      name of the live manifest
//	MANIFEST-000042.json         world config and per-region checksums
//	R_Overworld_0_0_0.rgn        region file, uncompressed
//	R_Overworld_1_0_0.rgn.zst    region file, zstd
//
// Region files have one 16-byte little-endian record per chunk (offset,
// size, millisecond timestamp) followed by the chunk streams in index order.
//
// # Observability
//
// Use WithLogger for structured logs and WithMetricsCollector for counters;
// BasicMetricsCollector keeps them in memory.
package octoterra
