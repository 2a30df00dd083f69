package octoterra

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    loadCounter    prometheus.Counter
//	    meshHistogram  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordMesh(triangles int, duration time.Duration, err error) {
//	    p.meshHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordLookup is called after each point query.
	RecordLookup(duration time.Duration, err error)

	// RecordRegionLoad is called after a region was read from storage.
	// bytes is the uncompressed region size.
	RecordRegionLoad(bytes int, duration time.Duration, err error)

	// RecordRegionSave is called after a region was written to storage.
	RecordRegionSave(bytes int, duration time.Duration, err error)

	// RecordChunkUpdate is called after a chunk stream was replaced.
	RecordChunkUpdate(bytes int, err error)

	// RecordMesh is called after each chunk mesh extraction.
	RecordMesh(triangles int, duration time.Duration, err error)

	// RecordCorruption is called for each unreadable region or chunk.
	RecordCorruption()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLookup(time.Duration, error)          {}
func (NoopMetricsCollector) RecordRegionLoad(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRegionSave(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordChunkUpdate(int, error)               {}
func (NoopMetricsCollector) RecordMesh(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordCorruption()                          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LookupCount       atomic.Int64
	LookupErrors      atomic.Int64
	LookupTotalNanos  atomic.Int64
	RegionLoadCount   atomic.Int64
	RegionLoadErrors  atomic.Int64
	RegionLoadBytes   atomic.Int64
	RegionLoadNanos   atomic.Int64
	RegionSaveCount   atomic.Int64
	RegionSaveErrors  atomic.Int64
	RegionSaveBytes   atomic.Int64
	RegionSaveNanos   atomic.Int64
	ChunkUpdateCount  atomic.Int64
	ChunkUpdateErrors atomic.Int64
	MeshCount         atomic.Int64
	MeshErrors        atomic.Int64
	MeshTriangles     atomic.Int64
	MeshTotalNanos    atomic.Int64
	CorruptionCount   atomic.Int64
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(duration time.Duration, err error) {
	b.LookupCount.Add(1)
	b.LookupTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LookupErrors.Add(1)
	}
}

// RecordRegionLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegionLoad(bytes int, duration time.Duration, err error) {
	b.RegionLoadCount.Add(1)
	b.RegionLoadNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RegionLoadErrors.Add(1)
		return
	}
	b.RegionLoadBytes.Add(int64(bytes))
}

// RecordRegionSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegionSave(bytes int, duration time.Duration, err error) {
	b.RegionSaveCount.Add(1)
	b.RegionSaveNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RegionSaveErrors.Add(1)
		return
	}
	b.RegionSaveBytes.Add(int64(bytes))
}

// RecordChunkUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChunkUpdate(_ int, err error) {
	b.ChunkUpdateCount.Add(1)
	if err != nil {
		b.ChunkUpdateErrors.Add(1)
	}
}

// RecordMesh implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMesh(triangles int, duration time.Duration, err error) {
	b.MeshCount.Add(1)
	b.MeshTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MeshErrors.Add(1)
		return
	}
	b.MeshTriangles.Add(int64(triangles))
}

// RecordCorruption implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCorruption() {
	b.CorruptionCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	lookups := b.LookupCount.Load()
	meshes := b.MeshCount.Load()
	loads := b.RegionLoadCount.Load()

	var lookupAvg, meshAvg, loadAvg int64
	if lookups > 0 {
		lookupAvg = b.LookupTotalNanos.Load() / lookups
	}
	if meshes > 0 {
		meshAvg = b.MeshTotalNanos.Load() / meshes
	}
	if loads > 0 {
		loadAvg = b.RegionLoadNanos.Load() / loads
	}

	return BasicMetricsStats{
		LookupCount:        lookups,
		LookupErrors:       b.LookupErrors.Load(),
		LookupAvgNanos:     lookupAvg,
		RegionLoadCount:    loads,
		RegionLoadErrors:   b.RegionLoadErrors.Load(),
		RegionLoadBytes:    b.RegionLoadBytes.Load(),
		RegionLoadAvgNanos: loadAvg,
		RegionSaveCount:    b.RegionSaveCount.Load(),
		RegionSaveErrors:   b.RegionSaveErrors.Load(),
		RegionSaveBytes:    b.RegionSaveBytes.Load(),
		ChunkUpdateCount:   b.ChunkUpdateCount.Load(),
		ChunkUpdateErrors:  b.ChunkUpdateErrors.Load(),
		MeshCount:          meshes,
		MeshErrors:         b.MeshErrors.Load(),
		MeshTriangles:      b.MeshTriangles.Load(),
		MeshAvgNanos:       meshAvg,
		CorruptionCount:    b.CorruptionCount.Load(),
	}
}

// BasicMetricsStats is a snapshot of metrics at a point in time.
type BasicMetricsStats struct {
	LookupCount        int64
	LookupErrors       int64
	LookupAvgNanos     int64
	RegionLoadCount    int64
	RegionLoadErrors   int64
	RegionLoadBytes    int64
	RegionLoadAvgNanos int64
	RegionSaveCount    int64
	RegionSaveErrors   int64
	RegionSaveBytes    int64
	ChunkUpdateCount   int64
	ChunkUpdateErrors  int64
	MeshCount          int64
	MeshErrors         int64
	MeshTriangles      int64
	MeshAvgNanos       int64
	CorruptionCount    int64
}
