package material

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()

	grass, ok := p.Get(Grass)
	require.True(t, ok)
	require.Equal(t, "Grass", grass.Name)
	require.True(t, grass.Solid)

	rgba := grass.RGBA()
	require.InDelta(t, 0.298, rgba[0], 0.01)
	require.InDelta(t, 0.686, rgba[1], 0.01)
	require.InDelta(t, 0.314, rgba[2], 0.01)
	require.Equal(t, float32(1), rgba[3])

	air, ok := p.Get(Air)
	require.True(t, ok)
	require.False(t, air.Solid)
	require.Zero(t, air.RGBA()[3])

	cut, ok := p.Get(Cut)
	require.True(t, ok)
	require.Equal(t, [4]float32{1, 0, 0, 1}, cut.RGBA())
}

func TestLookup_Unknown(t *testing.T) {
	p := Default()
	var missed []uint8
	p.OnUnknown(func(id uint8) { missed = append(missed, id) })

	m := p.Lookup(77)
	require.Equal(t, uint8(77), m.ID)
	require.Equal(t, "Unknown", m.Name)
	require.Equal(t, []uint8{77}, missed)

	p.Set(Material{ID: 77, Name: "Lava"})
	require.Equal(t, "Lava", p.Lookup(77).Name)
	require.Len(t, missed, 1)
}

func TestBlend(t *testing.T) {
	p := Default()
	rock := p.Lookup(Rock)
	same := Blend(rock, rock, 0.5)
	for i, v := range rock.RGBA() {
		require.InDelta(t, v, same[i], 1e-4)
	}

	water := p.Lookup(Water)
	mixed := Blend(rock, water, 1)
	require.InDelta(t, water.RGBA()[2], mixed[2], 1e-3)
	require.InDelta(t, 0.5, mixed[3], 1e-6)
}
