package distribute

import (
	"github.com/parfem/parmesh/mesh"
)

// The record types below are exchanged between ranks as a unit. Every
// field a record carries is listed in the order the element distribution
// protocol consumes it; optional data (per-face metadata, boundary lists)
// travels as explicitly sized slices.

// Message tag ranges per exchange phase. Each logical exchange occupies
// two consecutive tags.
const (
	tagElemDist    = 100
	tagHaloRequest = 110
	tagHaloReply   = 120
	tagSchedule    = 130
	tagBarrier     = 140
)

// wireElement is the element metadata routed to its owning rank.
type wireElement struct {
	Type      mesh.ElementType
	PolyGrid  int
	PolySol   int
	NDOFsGrid int
	NDOFsSol  int
	NumFaces  int

	JacConstant bool

	GlobalID            uint64
	OffsetDOFsSolGlobal uint64

	Nodes []uint64

	// Per-face neighbor metadata, NumFaces entries each.
	Neighbors       []int64
	FaceDonor       []mesh.PeriodicIndex
	JacFaceConstant []bool
}

// wireNode carries one point: identity plus coordinates.
type wireNode struct {
	GlobalID uint64
	Donor    mesh.PeriodicIndex
	Coords   [3]float64
}

// wireSurface is one boundary face routed together with its owning volume
// element.
type wireSurface struct {
	Type      mesh.ElementType
	PolyGrid  int
	NDOFsGrid int

	VolElemGlobal uint64
	GlobalID      uint64

	Nodes []uint64
}

// elementBatch is the phase-1 record: all elements destined for one rank,
// the deduplicated sorted set of points they reference, and the boundary
// faces per marker whose owning element is in the batch.
type elementBatch struct {
	Elements   []wireElement
	Nodes      []wireNode
	Boundaries [][]wireSurface
}

// haloEntry identifies one halo element this rank needs: the composite
// key (global ID, periodic index) plus the local slot the reply data must
// land in.
type haloEntry struct {
	GlobalID  uint64
	Donor     mesh.PeriodicIndex
	LocalSlot int
}

// haloRequest is the first record of the halo-resolution round trip.
type haloRequest struct {
	Entries []haloEntry
}

// haloElement is the full element data returned for one halo entry,
// addressed back to the requester through its embedded local slot.
type haloElement struct {
	GlobalID     uint64
	LocalSlot    int
	RankOriginal int
	Donor        mesh.PeriodicIndex

	Type      mesh.ElementType
	PolyGrid  int
	PolySol   int
	NDOFsGrid int
	NDOFsSol  int
	NumFaces  int

	Nodes []uint64
}

// haloReply answers a haloRequest: the elements plus the deduplicated
// (node ID, periodic index) point payloads they reference.
type haloReply struct {
	Elements []haloElement
	Nodes    []wireNode
}

// scheduleRequest lists the global element IDs whose solution DOFs this
// rank must receive from the destination every iteration.
type scheduleRequest struct {
	GlobalIDs []uint64
}

// haloKey is the deduplication key of a halo element.
type haloKey struct {
	GlobalID uint64
	Donor    mesh.PeriodicIndex
}

func (k haloKey) less(o haloKey) bool {
	if k.GlobalID != o.GlobalID {
		return k.GlobalID < o.GlobalID
	}
	return k.Donor.Less(o.Donor)
}
