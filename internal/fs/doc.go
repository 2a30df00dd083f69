// Package fs abstracts the filesystem calls made by the local blob store so
// that tests can inject write, sync and close failures.
//
// Production code uses [Default], which forwards to the os package.
// [FaultyFS] wraps another FileSystem and fails writes on files whose name
// matches a rule:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailOnSync: true})
//
// [WriteFileAtomic] writes a temporary sibling, syncs it and renames it over
// the target, so readers observe either the old or the new file.
package fs
