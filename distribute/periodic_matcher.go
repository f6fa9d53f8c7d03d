package distribute

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/parfem/parmesh/config"
	"github.com/parfem/parmesh/mesh"
	"github.com/parfem/parmesh/parallel"
)

// probeTol is the tolerance attached to a transformed halo point when
// searching the boundary point index. It is deliberately huge so the
// boundary point's own per-face tolerance governs the comparison.
const probeTol = 1e10

// matchPeriodic reconciles the halo points lying on periodic boundaries
// against the points already present on the correspondingly indexed local
// marker. A halo point geometrically coincident with a boundary point is
// aliased to that point's local index; one without a local counterpart
// becomes a new entry of the point collection. Points whose key is
// already resolved are left untouched, so running the matcher again over
// a resolved set produces no new points.
func (b *Builder) matchPeriodic(m *mesh.Mesh, periodicPts []mesh.Point,
	pointIndex map[mesh.PointKey]int) {

	comm := b.engine.Comm()

	// periodicPts is sorted by periodic index, so each donor marker forms
	// one contiguous run.
	for iLow := 0; iLow < len(periodicPts); {
		iUpp := iLow + 1
		for iUpp < len(periodicPts) &&
			periodicPts[iUpp].Donor == periodicPts[iLow].Donor {
			iUpp++
		}

		marker := periodicPts[iLow].Donor.Marker
		if marker < 0 || marker >= len(m.Boundaries) {
			parallel.Fatalf(comm,
				"Builder.matchPeriodic: periodic marker %d outside the boundary range", marker)
		}
		spec := b.cfg.PeriodicForMarker(marker)
		if spec == nil {
			parallel.Fatalf(comm,
				"Builder.matchPeriodic: marker %q carries periodic halo points but no transform is configured",
				m.Boundaries[marker].Tag)
		}

		index := b.boundaryPointIndex(m, marker)
		rot := rotationToDonor(spec)

		// Translation applied after the rotation: the rotation center
		// minus the configured translation vector.
		var translation [3]float64
		for l := 0; l < 3; l++ {
			translation[l] = spec.RotationCenter[l] - spec.Translation[l]
		}

		for i := iLow; i < iUpp; i++ {
			p := periodicPts[i]

			// Already aliased or created by an earlier pass.
			if _, ok := pointIndex[p.Key()]; ok {
				continue
			}

			p.Coords = applyFromDonor(rot, spec.RotationCenter, translation, p.Coords)

			probe := mesh.ComparePoint{
				Dim:    m.Dim,
				NodeID: -1,
				Tol:    probeTol,
				Coords: p.Coords,
			}
			if found, ok := index.Search(probe); ok {
				pointIndex[p.Key()] = found.NodeID
			} else {
				pointIndex[p.Key()] = len(m.Points)
				m.Points = append(m.Points, p)
			}
		}

		iLow = iUpp
	}
}

// boundaryPointIndex collects the points of the given local periodic
// boundary into a tolerance-aware spatial index. The matching tolerance
// of a point is 1e-4 times the shortest edge of the surface element it
// belongs to; a point shared by several faces keeps the minimum.
func (b *Builder) boundaryPointIndex(m *mesh.Mesh, marker int) *mesh.PointIndex {
	comm := b.engine.Comm()
	surf := m.Boundaries[marker].Elements

	indexOf := make([]int, len(m.Points))
	for i := range indexOf {
		indexOf[i] = -1
	}

	var pts []mesh.ComparePoint
	for j := range surf {
		lenScale, err := surf[j].LengthScale(m.Points)
		if err != nil {
			parallel.Fatalf(comm, "Builder.boundaryPointIndex: %v", err)
		}
		tol := 1e-4 * lenScale

		for _, nn := range surf[j].Nodes {
			n := int(nn)
			if indexOf[n] == -1 {
				indexOf[n] = len(pts)
				pts = append(pts, mesh.ComparePoint{
					Dim:    m.Dim,
					NodeID: n,
					Tol:    tol,
					Coords: m.Points[n].Coords,
				})
			} else if tol < pts[indexOf[n]].Tol {
				pts[indexOf[n]].Tol = tol
			}
		}
	}

	return mesh.NewPointIndex(pts)
}

// rotationToDonor builds the rotation matrix towards the donor boundary:
// the product of the elementary rotations about the x, y, then z axis by
// the configured angles. The transform from the donor applies its
// transpose.
func rotationToDonor(spec *config.PeriodicSpec) *mat.Dense {
	theta := spec.RotationAngles[0]
	phi := spec.RotationAngles[1]
	psi := spec.RotationAngles[2]

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(theta), -math.Sin(theta),
		0, math.Sin(theta), math.Cos(theta),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(phi), 0, math.Sin(phi),
		0, 1, 0,
		-math.Sin(phi), 0, math.Cos(phi),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(psi), -math.Sin(psi), 0,
		math.Sin(psi), math.Cos(psi), 0,
		0, 0, 1,
	})

	var ryx, r mat.Dense
	ryx.Mul(ry, rx)
	r.Mul(rz, &ryx)
	return &r
}

// applyFromDonor maps donor coordinates onto the target boundary:
// x' = Rᵀ (x - center) + translation.
func applyFromDonor(rot *mat.Dense, center, translation, x [3]float64) [3]float64 {
	d := mat.NewVecDense(3, []float64{
		x[0] - center[0],
		x[1] - center[1],
		x[2] - center[2],
	})

	var out mat.VecDense
	out.MulVec(rot.T(), d)

	return [3]float64{
		out.AtVec(0) + translation[0],
		out.AtVec(1) + translation[1],
		out.AtVec(2) + translation[2],
	}
}
