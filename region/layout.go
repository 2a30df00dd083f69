package region

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/octoterra/internal/compress"
)

// RecordSize is the size in bytes of one index record.
const RecordSize = 16

// Layout is the chunk grid of one region.
type Layout struct {
	ChunksX int
	ChunksY int
	ChunksZ int
}

// DefaultLayout is 8 chunks wide, 2 tall and 8 deep.
func DefaultLayout() Layout {
	return Layout{ChunksX: 8, ChunksY: 2, ChunksZ: 8}
}

// TotalChunks returns the number of chunk slots in a region.
func (l Layout) TotalChunks() int { return l.ChunksX * l.ChunksY * l.ChunksZ }

// HeaderSize returns the size in bytes of the index table.
func (l Layout) HeaderSize() int { return l.TotalChunks() * RecordSize }

// Validate checks that every dimension is positive.
func (l Layout) Validate() error {
	if l.ChunksX <= 0 || l.ChunksY <= 0 || l.ChunksZ <= 0 {
		return fmt.Errorf("region: invalid layout %dx%dx%d", l.ChunksX, l.ChunksY, l.ChunksZ)
	}
	return nil
}

// Contains reports whether the local chunk coordinate lies inside the region.
func (l Layout) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < l.ChunksX && y < l.ChunksY && z < l.ChunksZ
}

// Index returns the slot of local chunk (x, y, z): X varies fastest, then Z,
// then Y.
func (l Layout) Index(x, y, z int) int {
	return x + z*l.ChunksX + y*l.ChunksX*l.ChunksZ
}

// Coords inverts Index.
func (l Layout) Coords(index int) (x, y, z int) {
	plane := l.ChunksX * l.ChunksZ
	y = index / plane
	rem := index % plane
	z = rem / l.ChunksX
	x = rem % l.ChunksX
	return x, y, z
}

// Key identifies a region by world name and region coordinates.
type Key struct {
	Name string
	X    int
	Y    int
	Z    int
}

// String returns "name(x,y,z)".
func (k Key) String() string {
	return fmt.Sprintf("%s(%d,%d,%d)", k.Name, k.X, k.Y, k.Z)
}

// ID returns the region identifier "R_<name>_<x>_<y>_<z>".
func (k Key) ID() string {
	return "R_" + k.Name + "_" + strconv.Itoa(k.X) + "_" + strconv.Itoa(k.Y) + "_" + strconv.Itoa(k.Z)
}

// FileExtension is the suffix of uncompressed region files.
const FileExtension = ".rgn"

// FileName returns the region's file name, ID plus ".rgn".
func (k Key) FileName() string { return k.ID() + FileExtension }

var errBadRegionID = errors.New("region: malformed region id")

// ParseID parses an identifier produced by Key.ID, optionally followed by
// the region file extension and a compression suffix. Names may themselves
// contain underscores and dots.
func ParseID(id string) (Key, error) {
	id = trimFileExtension(id)
	if !strings.HasPrefix(id, "R_") {
		return Key{}, fmt.Errorf("%w: %q", errBadRegionID, id)
	}
	parts := strings.Split(id[2:], "_")
	if len(parts) < 4 {
		return Key{}, fmt.Errorf("%w: %q", errBadRegionID, id)
	}
	n := len(parts)
	var coords [3]int
	for i, p := range parts[n-3:] {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q: %w", errBadRegionID, id, err)
		}
		coords[i] = v
	}
	name := strings.Join(parts[:n-3], "_")
	if name == "" {
		return Key{}, fmt.Errorf("%w: %q", errBadRegionID, id)
	}
	return Key{Name: name, X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

func trimFileExtension(id string) string {
	for _, kind := range []compress.Kind{compress.None, compress.LZ4, compress.Zstd} {
		if ext := FileExtension + kind.Extension(); strings.HasSuffix(id, ext) {
			return strings.TrimSuffix(id, ext)
		}
	}
	return id
}
