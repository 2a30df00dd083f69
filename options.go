package octoterra

import (
	"log/slog"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/codec"
	"github.com/hupe1980/octoterra/field"
	"github.com/hupe1980/octoterra/material"
	"github.com/hupe1980/octoterra/persistence"
	"github.com/hupe1980/octoterra/resource"
)

const defaultChunkCacheBytes = 64 << 20

type options struct {
	config           Config
	logger           *Logger
	metricsCollector MetricsCollector
	blobStore        blobstore.BlobStore
	regionStore      persistence.RegionStore
	codec            codec.Codec
	chunkCacheBytes  int64
	generator        field.Sampler
	resources        *resource.Controller
	meshWorkers      int
	palette          *material.Palette
}

// Option configures World behavior.
type Option func(*options)

// WithConfig sets the world grid. Defaults to DefaultConfig().
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithCompression sets the codec applied to written regions ("none", "lz4"
// or "zstd"). Regions written with another codec stay readable.
func WithCompression(name string) Option {
	return func(o *options) {
		o.config.Compression = name
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := octoterra.NewJSONLogger(slog.LevelInfo)
//	w, _ := octoterra.Open(ctx, octoterra.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &octoterra.BasicMetricsCollector{}
//	w, _ := octoterra.Open(ctx, octoterra.WithMetricsCollector(metrics))
//	// ... use w ...
//	stats := metrics.GetStats()
//	fmt.Printf("Region loads: %d, Avg latency: %dns\n", stats.RegionLoadCount, stats.RegionLoadAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithBlobStore sets where regions and manifests are kept. Defaults to an
// in-memory store.
func WithBlobStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobStore = s
	}
}

// WithRegionStore replaces the region store built on the blob store. The
// manifest still lives in the blob store.
func WithRegionStore(s persistence.RegionStore) Option {
	return func(o *options) {
		o.regionStore = s
	}
}

// WithCodec configures the codec used for manifests.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithChunkCacheSize bounds the decoded chunk cache, in bytes of estimated
// tree size.
func WithChunkCacheSize(bytes int64) Option {
	return func(o *options) {
		o.chunkCacheBytes = bytes
	}
}

// WithGenerator sets the field that materializes chunks never written
// before.
func WithGenerator(s field.Sampler) Option {
	return func(o *options) {
		o.generator = s
	}
}

// WithResourceController shares memory, worker and IO budgets with other
// components.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithMeshWorkers bounds the number of chunks meshed concurrently.
func WithMeshWorkers(n int) Option {
	return func(o *options) {
		o.meshWorkers = n
	}
}

// WithPalette sets the material colours used for meshes.
func WithPalette(p *material.Palette) Option {
	return func(o *options) {
		o.palette = p
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		config:           DefaultConfig(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		codec:            codec.Default,
		chunkCacheBytes:  defaultChunkCacheBytes,
		meshWorkers:      4,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.blobStore == nil {
		o.blobStore = blobstore.NewMemoryStore()
	}
	if o.meshWorkers < 1 {
		o.meshWorkers = 1
	}
	if o.palette == nil {
		o.palette = material.Default()
	}
	return o
}
