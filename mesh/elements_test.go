package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSurfaceLengthScale(t *testing.T) {
	{ // Line face in 2D.
		points := []Point{
			{Coords: [3]float64{0, 0, 0}},
			{Coords: [3]float64{0, 2.5, 0}},
		}
		sf := SurfaceElement{Type: Line, PolyGrid: 1, NDOFsGrid: 2, Nodes: []uint64{0, 1}}
		ls, err := sf.LengthScale(points)
		assert.Nil(t, err)
		assert.InDelta(t, 2.5, ls, 1e-12)
	}
	{ // Linear triangle face: 3-4-5 sides, shortest is 3.
		points := []Point{
			{Coords: [3]float64{0, 0, 0}},
			{Coords: [3]float64{3, 0, 0}},
			{Coords: [3]float64{0, 4, 0}},
		}
		sf := SurfaceElement{Type: Triangle, PolyGrid: 1, NDOFsGrid: 3, Nodes: []uint64{0, 1, 2}}
		ls, err := sf.LengthScale(points)
		assert.Nil(t, err)
		assert.InDelta(t, 3.0, ls, 1e-12)
	}
	{ // Linear quad face, tensor node ordering, 2x1 sides.
		points := []Point{
			{Coords: [3]float64{0, 0, 0}},
			{Coords: [3]float64{2, 0, 0}},
			{Coords: [3]float64{0, 1, 0}},
			{Coords: [3]float64{2, 1, 0}},
		}
		sf := SurfaceElement{Type: Quad, PolyGrid: 1, NDOFsGrid: 4, Nodes: []uint64{0, 1, 2, 3}}
		ls, err := sf.LengthScale(points)
		assert.Nil(t, err)
		assert.InDelta(t, 1.0, ls, 1e-12)
	}
	{ // Quadratic line: only the corner distance counts, not the midpoint.
		points := []Point{
			{Coords: [3]float64{0, 0, 0}},
			{Coords: [3]float64{0.4, 0.1, 0}},
			{Coords: [3]float64{1, 0, 0}},
		}
		sf := SurfaceElement{Type: Line, PolyGrid: 2, NDOFsGrid: 3, Nodes: []uint64{0, 1, 2}}
		ls, err := sf.LengthScale(points)
		assert.Nil(t, err)
		assert.InDelta(t, 1.0, ls, 1e-12)
	}
	{ // A volume element type is not a surface geometry.
		sf := SurfaceElement{Type: Hex, PolyGrid: 1, NDOFsGrid: 8}
		_, err := sf.LengthScale(nil)
		assert.NotNil(t, err)
	}
}

func TestSortSurfaceElements(t *testing.T) {
	elems := []SurfaceElement{
		{VolElemIndex: 2, GlobalID: 5},
		{VolElemIndex: 0, GlobalID: 9},
		{VolElemIndex: 2, GlobalID: 1},
		{VolElemIndex: 1, GlobalID: 0},
	}
	SortSurfaceElements(elems)
	assert.Equal(t, 0, elems[0].VolElemIndex)
	assert.Equal(t, 1, elems[1].VolElemIndex)
	assert.Equal(t, uint64(1), elems[2].GlobalID)
	assert.Equal(t, uint64(5), elems[3].GlobalID)
}
