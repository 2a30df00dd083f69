// Package blobstore stores region files and world manifests as named blobs.
//
// BlobStore is the persistence seam of a world. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and throwaway worlds
//   - LocalStore: one file per blob, atomic replace on write, mmap reads
//   - CachingStore: whole-blob LRU in front of another store
//   - s3.Store: Amazon S3 with multipart uploads and ranged reads
//   - minio.Store: MinIO and other S3-compatible servers
//
// Region files are small enough to read whole; [ReadAll] does that for any
// store. Blob.ReadAt serves partial reads such as header probes.
package blobstore
