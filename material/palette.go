// Package material defines the voxel material ids and their render colours.
package material

import (
	"fmt"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Built-in material ids. Id 255 is reserved for internal octree nodes.
const (
	Air    uint8 = 0
	Ground uint8 = 1
	Grass  uint8 = 2
	Rock   uint8 = 3
	Water  uint8 = 4
	Cut    uint8 = 255
)

// Material describes one palette entry.
type Material struct {
	ID    uint8
	Name  string
	Color colorful.Color
	Alpha float64
	Solid bool
}

// RGBA returns the colour as normalized components.
func (m Material) RGBA() [4]float32 {
	return [4]float32{float32(m.Color.R), float32(m.Color.G), float32(m.Color.B), float32(m.Alpha)}
}

// Palette maps material ids to materials. The zero value is empty; use
// Default for the built-in set. A Palette is safe for concurrent reads.
type Palette struct {
	mu      sync.RWMutex
	entries map[uint8]Material
	unknown func(id uint8)
}

// NewPalette returns a palette holding materials.
func NewPalette(materials ...Material) *Palette {
	p := &Palette{entries: make(map[uint8]Material, len(materials))}
	for _, m := range materials {
		p.entries[m.ID] = m
	}
	return p
}

// Default returns the built-in palette.
func Default() *Palette {
	return NewPalette(
		Material{ID: Air, Name: "Air", Color: colorful.Color{}, Alpha: 0},
		Material{ID: Ground, Name: "Ground", Color: mustHex("#8B4513"), Alpha: 1, Solid: true},
		Material{ID: Grass, Name: "Grass", Color: mustHex("#4CAF50"), Alpha: 1, Solid: true},
		Material{ID: Rock, Name: "Rock", Color: mustHex("#808080"), Alpha: 1, Solid: true},
		Material{ID: Water, Name: "Water", Color: mustHex("#2196F3"), Alpha: 0.5},
	)
}

// Cut material is rendered in debug red.
var cutMaterial = Material{ID: Cut, Name: "Mixed/Cut", Color: colorful.Color{R: 1}, Alpha: 1, Solid: true}

// unknownMaterial is what Lookup falls back to.
var unknownMaterial = Material{Name: "Unknown", Color: colorful.Color{R: 0.5, G: 0.5, B: 0.5}, Alpha: 1, Solid: true}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(fmt.Sprintf("material: bad colour %q: %v", s, err))
	}
	return c
}

// OnUnknown registers fn to be called whenever Lookup misses.
func (p *Palette) OnUnknown(fn func(id uint8)) {
	p.mu.Lock()
	p.unknown = fn
	p.mu.Unlock()
}

// Set adds or replaces a material.
func (p *Palette) Set(m Material) {
	p.mu.Lock()
	if p.entries == nil {
		p.entries = make(map[uint8]Material)
	}
	p.entries[m.ID] = m
	p.mu.Unlock()
}

// Get returns the material with the given id.
func (p *Palette) Get(id uint8) (Material, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.entries[id]
	if !ok && id == Cut {
		return cutMaterial, true
	}
	return m, ok
}

// Lookup is Get with a neutral grey fallback for unknown ids.
func (p *Palette) Lookup(id uint8) Material {
	if m, ok := p.Get(id); ok {
		return m
	}
	p.mu.RLock()
	fn := p.unknown
	p.mu.RUnlock()
	if fn != nil {
		fn(id)
	}
	m := unknownMaterial
	m.ID = id
	return m
}

// Blend mixes the colours of a and b in CIE L*a*b* space; t = 0 yields a.
func Blend(a, b Material, t float64) [4]float32 {
	c := a.Color.BlendLab(b.Color, t)
	alpha := a.Alpha + (b.Alpha-a.Alpha)*t
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(alpha)}
}
