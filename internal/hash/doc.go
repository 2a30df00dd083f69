// Package hash computes the CRC32-Castagnoli checksums stored in world
// manifests and sent with S3 uploads.
//
//	sum := hash.CRC32C(regionBytes)
package hash
