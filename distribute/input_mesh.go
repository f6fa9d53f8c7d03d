// Package distribute builds the local augmented mesh of one rank from an
// arbitrarily partitioned input grid: it routes every element to its
// designated owner, reconstructs the halo layer needed for flux and
// stencil computations, resolves periodic point correspondences, and
// derives the persistent send/receive schedule used by every subsequent
// solver iteration.
package distribute

import (
	"fmt"
	"sort"

	"github.com/parfem/parmesh/mesh"
)

// InputMesh is the contract with the original-partitioning collaborator:
// the slice of the naively partitioned global grid stored on this rank.
// Elements occupy the contiguous global ID range given by ElemOffsets.
type InputMesh struct {
	Dim int

	// Elements are this rank's input elements, stored in increasing global
	// ID order starting at ElemOffsets[rank].
	Elements []InputElement

	// NodeIDs and NodeCoords describe the locally stored points: global
	// point ID and coordinates per local node index.
	NodeIDs    []uint64
	NodeCoords [][]float64

	// Boundaries holds the boundary faces per marker. The marker order
	// matches the configuration.
	Boundaries []InputBoundary

	// ElemOffsets is the prefix sum of per-rank element counts of the
	// original partitioning, length size+1. Used to locate the rank of
	// origin of a halo element.
	ElemOffsets []uint64

	GlobalPointCount uint64
}

// InputElement is one volume element of the pre-partitioned grid.
type InputElement struct {
	GlobalID uint64

	// Color is the rank that will own this element after redistribution.
	Color int

	Type      mesh.ElementType
	PolyGrid  int
	PolySol   int
	NDOFsGrid int
	NDOFsSol  int

	// Nodes holds the global grid node IDs, NDOFsGrid entries.
	Nodes []uint64

	// Neighbors holds the global ID of the element across each face,
	// -1 when the face has no neighbor.
	Neighbors []int64

	// FaceDonor holds the periodic index of each face.
	FaceDonor []mesh.PeriodicIndex

	JacConstant     bool
	JacFaceConstant []bool

	OffsetDOFsSolGlobal uint64
}

// InputBoundary is the per-marker boundary face list of the input grid.
type InputBoundary struct {
	Elements []InputSurface
}

// InputSurface is one boundary face of the input grid.
type InputSurface struct {
	Type      mesh.ElementType
	PolyGrid  int
	NDOFsGrid int
	Nodes     []uint64

	// DomainElement is the global ID of the owning volume element, which
	// must be stored on this rank in the input partitioning.
	DomainElement uint64
	GlobalID      uint64
}

// Validate checks the structural consistency of the input slice for the
// given execution context. It runs before any communication is posted, so
// a violation is still reportable as a plain error.
func (in *InputMesh) Validate(rank, size int) error {
	if in.Dim != 2 && in.Dim != 3 {
		return fmt.Errorf("input mesh dimension %d, want 2 or 3", in.Dim)
	}
	if len(in.ElemOffsets) != size+1 {
		return fmt.Errorf("element offsets have %d entries, want %d", len(in.ElemOffsets), size+1)
	}
	if len(in.NodeIDs) != len(in.NodeCoords) {
		return fmt.Errorf("node table mismatch: %d IDs, %d coordinates",
			len(in.NodeIDs), len(in.NodeCoords))
	}

	first := in.ElemOffsets[rank]
	count := in.ElemOffsets[rank+1] - first
	if uint64(len(in.Elements)) != count {
		return fmt.Errorf("rank %d holds %d elements, partitioning expects %d",
			rank, len(in.Elements), count)
	}

	for i := range in.Elements {
		el := &in.Elements[i]
		if el.GlobalID != first+uint64(i) {
			return fmt.Errorf("element %d has global ID %d, want contiguous ID %d",
				i, el.GlobalID, first+uint64(i))
		}
		if el.Color < 0 || el.Color >= size {
			return fmt.Errorf("element %d colored for rank %d outside [0,%d)",
				el.GlobalID, el.Color, size)
		}
		if len(el.Nodes) != el.NDOFsGrid {
			return fmt.Errorf("element %d has %d nodes, want %d",
				el.GlobalID, len(el.Nodes), el.NDOFsGrid)
		}
		nf := len(el.Neighbors)
		if nf != el.Type.FaceCount() {
			return fmt.Errorf("element %d has %d faces, want %d for a %s",
				el.GlobalID, nf, el.Type.FaceCount(), el.Type)
		}
		if len(el.FaceDonor) != nf || len(el.JacFaceConstant) != nf {
			return fmt.Errorf("element %d: face metadata lengths disagree", el.GlobalID)
		}
	}

	for im := range in.Boundaries {
		for i := range in.Boundaries[im].Elements {
			sf := &in.Boundaries[im].Elements[i]
			if len(sf.Nodes) != sf.NDOFsGrid {
				return fmt.Errorf("marker %d face %d has %d nodes, want %d",
					im, i, len(sf.Nodes), sf.NDOFsGrid)
			}
		}
	}
	return nil
}

// localElemIndex resolves a global element ID to the index into Elements,
// valid only for elements stored on this rank in the input partitioning.
func (in *InputMesh) localElemIndex(rank int, globalID uint64) (int, bool) {
	first := in.ElemOffsets[rank]
	if globalID < first || globalID >= in.ElemOffsets[rank+1] {
		return 0, false
	}
	return int(globalID - first), true
}

// originRank locates the rank whose contiguous global ID range of the
// original partitioning contains the given element.
func originRank(offsets []uint64, globalID uint64) int {
	r := sort.Search(len(offsets), func(i int) bool { return offsets[i] > globalID })
	return r - 1
}
