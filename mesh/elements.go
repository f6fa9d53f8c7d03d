package mesh

import (
	"fmt"
	"math"
	"sort"
)

// VolumeElement is one volume element of the local mesh, either owned by
// this rank or part of the halo layer.
type VolumeElement struct {
	Type      ElementType
	PolyGrid  int // polynomial degree of the grid representation
	PolySol   int // polynomial degree of the solution representation
	NDOFsGrid int
	NDOFsSol  int
	NumFaces  int

	GlobalID     uint64
	RankOriginal int
	Donor        PeriodicIndex
	Owned        bool

	JacConstant     bool
	JacFaceConstant []bool

	// Nodes holds the grid node IDs of the element. They are global point
	// IDs until the final remapping pass converts them in place to local
	// indices into Mesh.Points.
	Nodes []uint64

	// OffsetDOFsSolGlobal is the global offset of the first solution DOF.
	// It is not communicated for halo elements and left at MaxUint64 there.
	OffsetDOFsSolGlobal uint64

	// OffsetDOFsSolLocal is assigned only after the full local mesh, owned
	// plus halo, is known. Owned elements get contiguous offsets in global
	// ID order, halo elements follow.
	OffsetDOFsSolLocal int
}

// SurfaceElement is one boundary face. It belongs to exactly one marker.
type SurfaceElement struct {
	Type      ElementType
	PolyGrid  int
	NDOFsGrid int

	// Nodes holds the grid node IDs, global until the remapping pass.
	// Boundary nodes never carry a periodic transformation.
	Nodes []uint64

	VolElemGlobal uint64 // global ID of the owning volume element
	VolElemIndex  int    // local index, assigned during remapping
	GlobalID      uint64
}

// SortSurfaceElements orders the faces of a marker by their owning volume
// element so boundary faces stay grouped per element.
func SortSurfaceElements(elems []SurfaceElement) {
	sort.Slice(elems, func(i, j int) bool {
		if elems[i].VolElemIndex != elems[j].VolElemIndex {
			return elems[i].VolElemIndex < elems[j].VolElemIndex
		}
		return elems[i].GlobalID < elems[j].GlobalID
	})
}

// edgeLayout returns the corner pairs of the edges of a surface element
// with high-order tensor/simplex node numbering, plus the coordinate
// dimension the element lives in.
func (s *SurfaceElement) edgeLayout() (edges [][2]int, dim int, err error) {
	p := s.PolyGrid
	last := s.NDOFsGrid - 1
	switch s.Type {
	case Line:
		return [][2]int{{0, last}}, 2, nil
	case Triangle:
		return [][2]int{{0, p}, {p, last}, {last, 0}}, 3, nil
	case Quad:
		return [][2]int{
			{0, p},
			{p, last},
			{last, p * (p + 1)},
			{p * (p + 1), 0},
		}, 3, nil
	default:
		return nil, 0, fmt.Errorf("unsupported surface element type %s", s.Type)
	}
}

// LengthScale returns the shortest edge length of the surface element. The
// node IDs must already be local indices into points. An element type that
// is not a valid surface geometry yields an error, which callers treat as
// fatal.
func (s *SurfaceElement) LengthScale(points []Point) (float64, error) {
	edges, dim, err := s.edgeLayout()
	if err != nil {
		return 0, err
	}

	lenScale := 0.0
	for i, e := range edges {
		n0 := points[s.Nodes[e[0]]]
		n1 := points[s.Nodes[e[1]]]

		length := 0.0
		for l := 0; l < dim; l++ {
			ds := n1.Coords[l] - n0.Coords[l]
			length += ds * ds
		}
		length = math.Sqrt(length)

		if i == 0 || length < lenScale {
			lenScale = length
		}
	}
	return lenScale, nil
}
