package distribute

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parfem/parmesh/config"
	"github.com/parfem/parmesh/mesh"
	"github.com/parfem/parmesh/parallel"
)

func TestRotationFromDonor(t *testing.T) {
	{ // Quarter turn about z, applied backwards from the donor side.
		spec := &config.PeriodicSpec{RotationAngles: [3]float64{0, 0, math.Pi / 2}}
		rot := rotationToDonor(spec)
		got := applyFromDonor(rot, [3]float64{}, [3]float64{}, [3]float64{1, 0, 0})
		assert.InDelta(t, 0, got[0], 1e-12)
		assert.InDelta(t, -1, got[1], 1e-12)
		assert.InDelta(t, 0, got[2], 1e-12)
	}
	{ // Rotation about an off-origin center followed by a translation.
		spec := &config.PeriodicSpec{
			RotationCenter: [3]float64{1, 0, 0},
			RotationAngles: [3]float64{0, 0, math.Pi},
		}
		rot := rotationToDonor(spec)
		translation := [3]float64{
			spec.RotationCenter[0] - spec.Translation[0],
			spec.RotationCenter[1] - spec.Translation[1],
			spec.RotationCenter[2] - spec.Translation[2],
		}
		got := applyFromDonor(rot, spec.RotationCenter, translation, [3]float64{2, 0, 0})
		assert.InDelta(t, 0, got[0], 1e-12)
		assert.InDelta(t, 0, got[1], 1e-12)
	}
	{ // Composed axis rotations: the inverse of x-then-y by 90 degrees
		// sends ez to -ex.
		spec := &config.PeriodicSpec{RotationAngles: [3]float64{math.Pi / 2, math.Pi / 2, 0}}
		rot := rotationToDonor(spec)
		got := applyFromDonor(rot, [3]float64{}, [3]float64{}, [3]float64{0, 0, 1})
		assert.InDelta(t, -1, got[0], 1e-12)
		assert.InDelta(t, 0, got[1], 1e-12)
		assert.InDelta(t, 0, got[2], 1e-12)
	}
}

// matcherFixture is a one-rank builder plus a two-point boundary strip on
// marker 0 at x = 0, periodic with pitch 1 in x.
func matcherFixture() (*Builder, *mesh.Mesh, map[mesh.PointKey]int) {
	cfg := &config.Config{
		Markers: []config.MarkerSpec{{
			Tag:      "left",
			Periodic: &config.PeriodicSpec{Translation: [3]float64{1, 0, 0}},
		}},
	}
	b := NewBuilder(parallel.NewCluster(1).Comm(0), cfg)

	m := &mesh.Mesh{
		Dim: 2,
		Points: []mesh.Point{
			{GlobalID: 0, Coords: [3]float64{0, 0, 0}},
			{GlobalID: 1, Coords: [3]float64{0, 1, 0}},
		},
		Boundaries: []mesh.Boundary{{
			Tag: "left",
			Elements: []mesh.SurfaceElement{{
				Type: mesh.Line, PolyGrid: 1, NDOFsGrid: 2,
				Nodes: []uint64{0, 1},
			}},
		}},
	}
	pointIndex := map[mesh.PointKey]int{
		m.Points[0].Key(): 0,
		m.Points[1].Key(): 1,
	}
	return b, m, pointIndex
}

func TestMatchPeriodicAliasAndAppend(t *testing.T) {
	b, m, pointIndex := matcherFixture()

	// Donor points at x = 1 map onto the boundary and alias its points;
	// the one at x = 2 maps beyond it and must be appended.
	periodicPts := []mesh.Point{
		{GlobalID: 10, Donor: mesh.Periodic(0), Coords: [3]float64{1, 0, 0}},
		{GlobalID: 11, Donor: mesh.Periodic(0), Coords: [3]float64{1, 1, 0}},
		{GlobalID: 12, Donor: mesh.Periodic(0), Coords: [3]float64{2, 1, 0}},
	}
	b.matchPeriodic(m, periodicPts, pointIndex)

	assert.Equal(t, 3, len(m.Points))
	assert.Equal(t, 0, pointIndex[mesh.PointKey{GlobalID: 10, Donor: mesh.Periodic(0)}])
	assert.Equal(t, 1, pointIndex[mesh.PointKey{GlobalID: 11, Donor: mesh.Periodic(0)}])
	assert.Equal(t, 2, pointIndex[mesh.PointKey{GlobalID: 12, Donor: mesh.Periodic(0)}])
	assert.InDelta(t, 1.0, m.Points[2].Coords[0], 1e-12)

	// A second pass over the same points resolves everything from the map
	// and creates nothing new.
	b.matchPeriodic(m, periodicPts, pointIndex)
	assert.Equal(t, 3, len(m.Points))
}

func TestMatchPeriodicTolerance(t *testing.T) {
	b, m, pointIndex := matcherFixture()

	// Within 1e-4 of the boundary edge length the image still matches;
	// clearly outside it does not.
	periodicPts := []mesh.Point{
		{GlobalID: 10, Donor: mesh.Periodic(0), Coords: [3]float64{1 + 5e-5, -5e-5, 0}},
		{GlobalID: 11, Donor: mesh.Periodic(0), Coords: [3]float64{1 + 5e-3, 1, 0}},
	}
	b.matchPeriodic(m, periodicPts, pointIndex)

	assert.Equal(t, 3, len(m.Points))
	assert.Equal(t, 0, pointIndex[mesh.PointKey{GlobalID: 10, Donor: mesh.Periodic(0)}])
	assert.Equal(t, 2, pointIndex[mesh.PointKey{GlobalID: 11, Donor: mesh.Periodic(0)}])
}

func TestMatchPeriodicUnconfiguredMarker(t *testing.T) {
	b, m, pointIndex := matcherFixture()
	b.cfg.Markers[0].Periodic = nil

	periodicPts := []mesh.Point{
		{GlobalID: 10, Donor: mesh.Periodic(0), Coords: [3]float64{1, 0, 0}},
	}
	assert.Panics(t, func() {
		b.matchPeriodic(m, periodicPts, pointIndex)
	})
}
