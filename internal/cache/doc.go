// Package cache provides a cost-bounded LRU cache.
//
// The world keeps decoded chunk roots in one, and the caching blob store
// keeps whole region files in another. Costs are charged against an optional
// resource.Controller so both caches share one memory budget.
package cache
