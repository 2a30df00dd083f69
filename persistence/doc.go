// Package persistence moves serialized region files between a world and a
// blob store.
//
// Region files are stored under "R_<name>_<x>_<y>_<z>.rgn", optionally
// wrapped in an LZ4 or Zstandard envelope and suffixed ".lz4" or ".zst".
// Reads accept any of the three forms, so a world can change its
// compression without rewriting old regions.
package persistence
