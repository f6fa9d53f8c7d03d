package mesh

import (
	"github.com/sirupsen/logrus"
)

// ElementType represents different element types
type ElementType int

const (
	Line ElementType = iota
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	return [...]string{"Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

// FaceCount returns the number of faces of a volume element of this type.
// For 1D and 2D volume elements the faces are the end points and edges.
func (e ElementType) FaceCount() int {
	switch e {
	case Line:
		return 2
	case Triangle:
		return 3
	case Quad:
		return 4
	case Tet:
		return 4
	case Hex:
		return 6
	case Prism, Pyramid:
		return 5
	default:
		return 0
	}
}

// Boundary groups the surface elements belonging to one named marker.
type Boundary struct {
	Tag      string
	Elements []SurfaceElement
}

// Mesh is the local augmented mesh of one rank: the owned volume elements
// followed by the halo layer, the deduplicated points referenced by them,
// and the boundary faces per marker. The structure is immutable once the
// construction has finished and is reused every solver iteration.
type Mesh struct {
	Dim int

	// Elements holds the owned elements first, in increasing global ID
	// order, followed by the halo elements. The total count is fixed once
	// the mesh skeleton has been materialized.
	Elements []VolumeElement
	NumOwned int

	// Points is the deduplicated point collection. After the remapping
	// phase every node ID stored in Elements and Boundaries indexes into
	// this slice.
	Points []Point

	Boundaries []Boundary

	// GlobalPointCount is the number of points of the global grid.
	GlobalPointCount uint64
}

// NumHalo returns the number of halo elements kept by this rank.
func (m *Mesh) NumHalo() int {
	return len(m.Elements) - m.NumOwned
}

// TotalDOFsSol returns the number of local solution DOFs, owned and halo.
func (m *Mesh) TotalDOFsSol() int {
	n := 0
	for i := range m.Elements {
		n += m.Elements[i].NDOFsSol
	}
	return n
}

// LogStatistics reports the mesh composition the way the partition
// analysis of the solver does.
func (m *Mesh) LogStatistics(log *logrus.Entry) {
	typeCounts := make(map[ElementType]int)
	for i := range m.Elements {
		typeCounts[m.Elements[i].Type]++
	}

	log.Infof("Local mesh: %d owned, %d halo, %d points",
		m.NumOwned, m.NumHalo(), len(m.Points))
	for t, count := range typeCounts {
		log.Infof("  %s: %d", t, count)
	}
	for i := range m.Boundaries {
		log.Infof("  Marker %q: %d faces",
			m.Boundaries[i].Tag, len(m.Boundaries[i].Elements))
	}
}
