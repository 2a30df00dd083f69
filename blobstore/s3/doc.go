// Package s3 stores region files and manifests in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("worlds/overworld"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	w, err := octoterra.Open(ctx, octoterra.WithBlobStore(store))
//
// # Features
//
//   - Ranged GETs for header probes
//   - Single PUT with a CRC32C checksum for small blobs, multipart uploads
//     through the transfer manager for large ones
//   - Paginated listing
//   - Key prefix per world
package s3
