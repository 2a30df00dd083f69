// Package mmap maps region files read-only into memory.
//
// The local blob store uses it to read a region file without staging it in a
// heap buffer first. A Mapping stays valid until Close; callers that keep the
// bytes past that point must copy them.
//
// Unix builds use mmap(2) and madvise(2). Windows builds use
// CreateFileMapping and MapViewOfFile, where Advise is a no-op.
package mmap
