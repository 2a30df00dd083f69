package region

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrIndexOutOfRange is returned for chunk indices outside the layout.
	ErrIndexOutOfRange = errors.New("region: chunk index out of range")

	// ErrRecordOutOfBounds marks an index record that points outside the
	// region blob. Load skips such records.
	ErrRecordOutOfBounds = errors.New("region: record out of bounds")

	// ErrInvariant is returned by Verify for blobs whose layout is not canonical.
	ErrInvariant = errors.New("region: layout invariant violated")
)

// IndexError reports an out-of-range chunk index.
type IndexError struct {
	Index int
	Total int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("region: chunk index %d out of range [0, %d)", e.Index, e.Total)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// IndexRecord locates one chunk stream inside a region blob.
// A zero record means the chunk was never materialized and reads as air.
type IndexRecord struct {
	Offset uint32
	Size   uint32
	// Timestamp is the last modification in Unix milliseconds.
	Timestamp int64
}

// IsPresent reports whether the record points at stored chunk bytes.
func (r IndexRecord) IsPresent() bool { return r.Offset > 0 && r.Size > 0 }

// Time returns the record timestamp.
func (r IndexRecord) Time() time.Time { return time.UnixMilli(r.Timestamp) }

func (r IndexRecord) put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], r.Offset)
	binary.LittleEndian.PutUint32(b[4:], r.Size)
	binary.LittleEndian.PutUint64(b[8:], uint64(r.Timestamp))
}

func readRecord(b []byte) IndexRecord {
	return IndexRecord{
		Offset:    binary.LittleEndian.Uint32(b[0:]),
		Size:      binary.LittleEndian.Uint32(b[4:]),
		Timestamp: int64(binary.LittleEndian.Uint64(b[8:])),
	}
}

// Options configures a Container.
type Options struct {
	// Logger receives warnings about skipped records. Nil discards.
	Logger *slog.Logger
}

// Container holds the chunk streams of one region in memory.
//
// A Container is not safe for concurrent mutation; callers serialize access.
// Offsets in the index are authoritative only after SerializeFull.
type Container struct {
	layout  Layout
	records []IndexRecord
	chunks  [][]byte
	dirty   bool
	changed *roaring.Bitmap
	logger  *slog.Logger
}

// New returns an empty container for layout.
func New(layout Layout, optFns ...func(o *Options)) (*Container, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	n := layout.TotalChunks()
	return &Container{
		layout:  layout,
		records: make([]IndexRecord, n),
		chunks:  make([][]byte, n),
		changed: roaring.New(),
		logger:  opts.Logger,
	}, nil
}

// Load returns a container populated from raw.
func Load(layout Layout, raw []byte, optFns ...func(o *Options)) (*Container, LoadReport, error) {
	c, err := New(layout, optFns...)
	if err != nil {
		return nil, LoadReport{}, err
	}
	report := c.Load(raw)
	return c, report, nil
}

// LoadReport summarizes a Load.
type LoadReport struct {
	Present int
	Skipped int
	// TruncatedHeader is set when raw ended inside the index table.
	TruncatedHeader bool
}

// Load replaces the container's content with the region blob raw. An empty
// blob yields an all-air region. Records that do not fit in raw are skipped
// and logged; Load never fails.
func (c *Container) Load(raw []byte) LoadReport {
	for i := range c.records {
		c.records[i] = IndexRecord{}
		c.chunks[i] = nil
	}
	c.dirty = false
	c.changed.Clear()

	var report LoadReport
	if len(raw) == 0 {
		return report
	}

	header := c.layout.HeaderSize()
	if len(raw) < header {
		report.TruncatedHeader = true
		c.logger.Warn("region header truncated",
			"bytes", len(raw),
			"header_size", header,
		)
	}

	for i := range c.records {
		at := i * RecordSize
		if at+RecordSize > len(raw) {
			break
		}
		rec := readRecord(raw[at : at+RecordSize])
		if !rec.IsPresent() {
			continue
		}
		end := uint64(rec.Offset) + uint64(rec.Size)
		if uint64(rec.Offset) < uint64(header) || end > uint64(len(raw)) {
			report.Skipped++
			c.logger.Warn("skipping region record",
				"chunk", i,
				"offset", rec.Offset,
				"size", rec.Size,
				"bytes", len(raw),
				"error", ErrRecordOutOfBounds,
			)
			continue
		}
		data := make([]byte, rec.Size)
		copy(data, raw[rec.Offset:end])
		c.records[i] = rec
		c.chunks[i] = data
		report.Present++
	}
	return report
}

// Layout returns the container's chunk grid.
func (c *Container) Layout() Layout { return c.layout }

func (c *Container) check(index int) error {
	if index < 0 || index >= len(c.records) {
		return &IndexError{Index: index, Total: len(c.records)}
	}
	return nil
}

// ChunkBytes returns the stream of chunk index. ok is false when the chunk
// is absent, which callers treat as air. The returned slice must not be
// modified.
func (c *Container) ChunkBytes(index int) (data []byte, ok bool, err error) {
	if err := c.check(index); err != nil {
		return nil, false, err
	}
	if c.chunks[index] == nil {
		return nil, false, nil
	}
	return c.chunks[index], true, nil
}

// SetChunkBytes stores a copy of data as chunk index and marks the region
// dirty. Offsets are recomputed by SerializeFull. Empty data clears the chunk.
func (c *Container) SetChunkBytes(index int, data []byte, ts time.Time) error {
	if err := c.check(index); err != nil {
		return err
	}
	if len(data) == 0 {
		return c.ClearChunk(index)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.chunks[index] = buf
	c.records[index] = IndexRecord{
		Offset:    c.records[index].Offset,
		Size:      uint32(len(buf)),
		Timestamp: ts.UnixMilli(),
	}
	c.markDirty(index)
	return nil
}

// ClearChunk removes chunk index, returning it to implicit air.
func (c *Container) ClearChunk(index int) error {
	if err := c.check(index); err != nil {
		return err
	}
	if c.chunks[index] == nil && c.records[index] == (IndexRecord{}) {
		return nil
	}
	c.chunks[index] = nil
	c.records[index] = IndexRecord{}
	c.markDirty(index)
	return nil
}

func (c *Container) markDirty(index int) {
	c.dirty = true
	c.changed.Add(uint32(index))
}

// MarkDirty flags the container as modified, adding indices to the dirty
// set. Callers use it to restore the state SerializeFull cleared when the
// serialized bytes could not be persisted.
func (c *Container) MarkDirty(indices ...uint32) {
	c.dirty = true
	for _, i := range indices {
		if int(i) < len(c.records) {
			c.changed.Add(i)
		}
	}
}

// Record returns the index record of chunk index.
func (c *Container) Record(index int) (IndexRecord, error) {
	if err := c.check(index); err != nil {
		return IndexRecord{}, err
	}
	return c.records[index], nil
}

// Records returns a copy of the index table.
func (c *Container) Records() []IndexRecord {
	out := make([]IndexRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Dirty reports whether the container changed since the last Load or
// SerializeFull.
func (c *Container) Dirty() bool { return c.dirty }

// DirtyChunks returns the indices modified since the last Load or
// SerializeFull, in ascending order.
func (c *Container) DirtyChunks() []uint32 { return c.changed.ToArray() }

// PresentCount returns the number of materialized chunks.
func (c *Container) PresentCount() int {
	n := 0
	for _, ch := range c.chunks {
		if ch != nil {
			n++
		}
	}
	return n
}

// DataSize returns the total size of all chunk streams.
func (c *Container) DataSize() int {
	n := 0
	for _, ch := range c.chunks {
		n += len(ch)
	}
	return n
}

// SerializeFull lays out every present chunk contiguously in index order
// after the header, rewrites all offsets and clears the dirty state.
func (c *Container) SerializeFull() []byte {
	header := c.layout.HeaderSize()
	out := make([]byte, header+c.DataSize())

	off := header
	for i, ch := range c.chunks {
		if ch == nil {
			c.records[i] = IndexRecord{}
			continue
		}
		c.records[i].Offset = uint32(off)
		c.records[i].Size = uint32(len(ch))
		copy(out[off:], ch)
		off += len(ch)
	}
	for i, rec := range c.records {
		rec.put(out[i*RecordSize:])
	}

	c.dirty = false
	c.changed.Clear()
	return out
}

// Verify checks that raw is a canonical region blob for layout: every present
// record starts where the previous one ended, in index order, and the data
// area ends exactly at the end of raw.
func Verify(layout Layout, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	header := layout.HeaderSize()
	if len(raw) < header {
		return fmt.Errorf("%w: %d bytes shorter than header %d", ErrInvariant, len(raw), header)
	}
	next := uint64(header)
	for i := 0; i < layout.TotalChunks(); i++ {
		rec := readRecord(raw[i*RecordSize:])
		if !rec.IsPresent() {
			if rec.Offset != 0 || rec.Size != 0 {
				return fmt.Errorf("%w: chunk %d has partial record %+v", ErrInvariant, i, rec)
			}
			continue
		}
		if uint64(rec.Offset) != next {
			return fmt.Errorf("%w: chunk %d at offset %d, want %d", ErrInvariant, i, rec.Offset, next)
		}
		next += uint64(rec.Size)
	}
	if next != uint64(len(raw)) {
		return fmt.Errorf("%w: data ends at %d, blob is %d bytes", ErrInvariant, next, len(raw))
	}
	return nil
}
