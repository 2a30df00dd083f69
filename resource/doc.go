// Package resource governs the shared budgets of a world:
//
//   - Memory: bytes held by cached chunk roots and region blobs.
//   - Workers: concurrent chunk generation and meshing jobs.
//   - IO: region bytes read from or written to a blob store per second.
//
// A nil *Controller is valid and imposes no limits.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	    MaxWorkers:       4,
//	    IOBytesPerSec:    32 << 20,
//	})
package resource
