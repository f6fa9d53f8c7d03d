package distribute

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/parfem/parmesh/config"
	"github.com/parfem/parmesh/mesh"
	"github.com/parfem/parmesh/parallel"
)

// Builder runs the four-phase redistribution pipeline on one rank and
// hands the finished local mesh to the periodic matcher and the schedule
// builder. A Builder is constructed per rank with an explicit execution
// context; it keeps no global state.
type Builder struct {
	engine *parallel.Engine
	cfg    *config.Config
	log    *logrus.Entry
}

// NewBuilder creates a builder bound to the given communicator and marker
// configuration.
func NewBuilder(c parallel.Communicator, cfg *config.Config) *Builder {
	return &Builder{
		engine: parallel.NewEngine(c),
		cfg:    cfg,
		log:    logrus.WithField("rank", c.Rank()),
	}
}

// Build constructs the local mesh (owned elements plus halo layer,
// deduplicated points, boundary faces with local indices) and the
// communication schedule. Input validation failures are returned as
// errors before any message is posted; every inconsistency detected once
// the protocol is underway aborts the whole distributed computation.
func (b *Builder) Build(in *InputMesh) (*mesh.Mesh, *Schedule, error) {
	rank := b.engine.Rank()
	size := b.engine.Size()

	if err := in.Validate(rank, size); err != nil {
		return nil, nil, err
	}

	// Phase 1: collect owned elements and route them to their colors.
	batches := b.collectOwned(in)
	b.log.Debugf("element distribution: %d destination ranks", len(batches))

	// Phase 2: exchange the batches. The destination set sizing happens
	// implicitly inside the engine's participation reduction.
	recv := b.exchangeBatches(batches)

	// Phase 3: materialize the local mesh skeleton.
	m, halos, elemIndex := b.materialize(in, recv)

	// Phase 4: resolve the halo layer and deduplicate its points.
	periodicPts, pointIndex := b.resolveHalos(in, m, halos)

	// Post-passes: boundary remap, periodic matching, node remap, local
	// DOF offsets, then the steady-state schedule.
	b.remapBoundaries(m, elemIndex, pointIndex)
	b.matchPeriodic(m, periodicPts, pointIndex)
	b.remapElementNodes(m, pointIndex)
	assignLocalDOFOffsets(m)

	sched := b.buildSchedule(m, elemIndex)

	if err := b.engine.Barrier(tagBarrier); err != nil {
		parallel.Fatalf(b.engine.Comm(), "Builder.Build: final synchronization failed: %v", err)
	}

	m.LogStatistics(b.log)
	return m, sched, nil
}

// collectOwned buckets this rank's input elements per destination rank,
// derives per destination the deduplicated sorted set of referenced
// points, and routes every boundary face with its owning element.
func (b *Builder) collectOwned(in *InputMesh) map[int]*elementBatch {
	rank := b.engine.Rank()
	comm := b.engine.Comm()

	globalToLocalNode := make(map[uint64]int, len(in.NodeIDs))
	for i, id := range in.NodeIDs {
		globalToLocalNode[id] = i
	}

	nMarker := len(in.Boundaries)
	batches := make(map[int]*elementBatch)
	batchFor := func(dest int) *elementBatch {
		bt := batches[dest]
		if bt == nil {
			bt = &elementBatch{Boundaries: make([][]wireSurface, nMarker)}
			batches[dest] = bt
		}
		return bt
	}

	for i := range in.Elements {
		el := &in.Elements[i]
		bt := batchFor(el.Color)
		bt.Elements = append(bt.Elements, wireElement{
			Type:                el.Type,
			PolyGrid:            el.PolyGrid,
			PolySol:             el.PolySol,
			NDOFsGrid:           el.NDOFsGrid,
			NDOFsSol:            el.NDOFsSol,
			NumFaces:            len(el.Neighbors),
			JacConstant:         el.JacConstant,
			GlobalID:            el.GlobalID,
			OffsetDOFsSolGlobal: el.OffsetDOFsSolGlobal,
			Nodes:               append([]uint64(nil), el.Nodes...),
			Neighbors:           append([]int64(nil), el.Neighbors...),
			FaceDonor:           append([]mesh.PeriodicIndex(nil), el.FaceDonor...),
			JacFaceConstant:     append([]bool(nil), el.JacFaceConstant...),
		})
	}

	// Per destination, the deduplicated sorted point set with coordinates.
	for _, bt := range batches {
		set := make(map[uint64]struct{})
		for i := range bt.Elements {
			for _, n := range bt.Elements[i].Nodes {
				set[n] = struct{}{}
			}
		}
		ids := make([]uint64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		bt.Nodes = make([]wireNode, 0, len(ids))
		for _, id := range ids {
			li, ok := globalToLocalNode[id]
			if !ok {
				parallel.Fatalf(comm,
					"Builder.collectOwned: node %d not found in the input node table", id)
			}
			wn := wireNode{GlobalID: id, Donor: mesh.NoPeriodic()}
			copy(wn.Coords[:], in.NodeCoords[li])
			bt.Nodes = append(bt.Nodes, wn)
		}
	}

	// Boundary faces travel to the destination of their owning element.
	for im := range in.Boundaries {
		for i := range in.Boundaries[im].Elements {
			sf := &in.Boundaries[im].Elements[i]
			loc, ok := in.localElemIndex(rank, sf.DomainElement)
			if !ok {
				parallel.Fatalf(comm,
					"Builder.collectOwned: boundary face %d references element %d outside this rank's input range",
					sf.GlobalID, sf.DomainElement)
			}
			bt := batchFor(in.Elements[loc].Color)
			bt.Boundaries[im] = append(bt.Boundaries[im], wireSurface{
				Type:          sf.Type,
				PolyGrid:      sf.PolyGrid,
				NDOFsGrid:     sf.NDOFsGrid,
				VolElemGlobal: sf.DomainElement,
				GlobalID:      sf.GlobalID,
				Nodes:         append([]uint64(nil), sf.Nodes...),
			})
		}
	}

	return batches
}

// exchangeBatches performs the phase-1 exchange, returning the batches
// addressed to this rank keyed by source rank.
func (b *Builder) exchangeBatches(batches map[int]*elementBatch) map[int]*elementBatch {
	send := make(map[int]interface{}, len(batches))
	for d, bt := range batches {
		send[d] = bt
	}

	raw, err := b.engine.Exchange(send, tagElemDist,
		func() interface{} { return new(elementBatch) })
	if err != nil {
		parallel.Fatalf(b.engine.Comm(), "Builder.exchangeBatches: %v", err)
	}

	recv := make(map[int]*elementBatch, len(raw))
	for s, r := range raw {
		recv[s] = r.(*elementBatch)
	}
	return recv
}

// materialize builds the local mesh skeleton from the received batches:
// owned elements in global ID order, pre-allocated halo slots directly
// after them, the deduplicated owned point set and the per-marker
// boundary faces. It returns the deduplicated halo keys in slot order and
// the owned global-ID-to-local-index map.
func (b *Builder) materialize(in *InputMesh,
	recv map[int]*elementBatch) (*mesh.Mesh, []haloKey, map[uint64]int) {

	rank := b.engine.Rank()
	comm := b.engine.Comm()
	nMarker := len(in.Boundaries)

	// Sorted source order keeps the construction deterministic.
	sources := make([]int, 0, len(recv))
	for s := range recv {
		sources = append(sources, s)
	}
	sort.Ints(sources)

	// The global element IDs now owned locally, sorted for lookup.
	var ownedIDs []uint64
	for _, s := range sources {
		for i := range recv[s].Elements {
			ownedIDs = append(ownedIDs, recv[s].Elements[i].GlobalID)
		}
	}
	sort.Slice(ownedIDs, func(i, j int) bool { return ownedIDs[i] < ownedIDs[j] })

	ownedContains := func(id uint64) bool {
		i := sort.Search(len(ownedIDs), func(i int) bool { return ownedIDs[i] >= id })
		return i < len(ownedIDs) && ownedIDs[i] == id
	}

	// Collect the halo keys: every referenced neighbor that carries a
	// periodic face index, or is not owned locally. A neighbor with a
	// periodic transformation always becomes a halo, even when the
	// element itself is stored on this rank.
	var halos []haloKey
	for _, s := range sources {
		for i := range recv[s].Elements {
			we := &recv[s].Elements[i]
			for k := 0; k < we.NumFaces; k++ {
				nb := we.Neighbors[k]
				if nb < 0 {
					continue
				}
				donor := we.FaceDonor[k]
				if !donor.Valid && ownedContains(uint64(nb)) {
					continue
				}
				halos = append(halos, haloKey{GlobalID: uint64(nb), Donor: donor})
			}
		}
	}
	sort.Slice(halos, func(i, j int) bool { return halos[i].less(halos[j]) })
	halos = dedupHaloKeys(halos)

	numOwned := len(ownedIDs)
	m := &mesh.Mesh{
		Dim:              in.Dim,
		Elements:         make([]mesh.VolumeElement, numOwned+len(halos)),
		NumOwned:         numOwned,
		Boundaries:       make([]mesh.Boundary, nMarker),
		GlobalPointCount: in.GlobalPointCount,
	}
	for im := range m.Boundaries {
		m.Boundaries[im].Tag = b.cfg.MarkerTag(im)
	}

	elemIndex := make(map[uint64]int, numOwned)
	for i, id := range ownedIDs {
		elemIndex[id] = i
	}

	// Fill the owned elements and accumulate points and boundary faces.
	var points []mesh.Point
	for _, s := range sources {
		bt := recv[s]

		for i := range bt.Elements {
			we := &bt.Elements[i]
			ind, ok := elemIndex[we.GlobalID]
			if !ok {
				parallel.Fatalf(comm,
					"Builder.materialize: element %d missing from the owned ID map", we.GlobalID)
			}
			m.Elements[ind] = mesh.VolumeElement{
				Type:                we.Type,
				PolyGrid:            we.PolyGrid,
				PolySol:             we.PolySol,
				NDOFsGrid:           we.NDOFsGrid,
				NDOFsSol:            we.NDOFsSol,
				NumFaces:            we.NumFaces,
				GlobalID:            we.GlobalID,
				RankOriginal:        rank,
				Donor:               mesh.NoPeriodic(),
				Owned:               true,
				JacConstant:         we.JacConstant,
				JacFaceConstant:     append([]bool(nil), we.JacFaceConstant...),
				Nodes:               append([]uint64(nil), we.Nodes...),
				OffsetDOFsSolGlobal: we.OffsetDOFsSolGlobal,
			}
		}

		for i := range bt.Nodes {
			wn := &bt.Nodes[i]
			points = append(points, mesh.Point{
				GlobalID: wn.GlobalID,
				Donor:    wn.Donor,
				Coords:   wn.Coords,
			})
		}

		for im := 0; im < nMarker; im++ {
			for i := range bt.Boundaries[im] {
				ws := &bt.Boundaries[im][i]
				m.Boundaries[im].Elements = append(m.Boundaries[im].Elements,
					mesh.SurfaceElement{
						Type:          ws.Type,
						PolyGrid:      ws.PolyGrid,
						NDOFsGrid:     ws.NDOFsGrid,
						Nodes:         append([]uint64(nil), ws.Nodes...),
						VolElemGlobal: ws.VolElemGlobal,
						GlobalID:      ws.GlobalID,
					})
			}
		}
	}

	m.Points = mesh.DedupPoints(points)
	return m, halos, elemIndex
}

// remapBoundaries converts the volume element reference and the node IDs
// of every boundary face to local indices, then restores the per-marker
// grouping by owning element.
func (b *Builder) remapBoundaries(m *mesh.Mesh, elemIndex map[uint64]int,
	pointIndex map[mesh.PointKey]int) {

	comm := b.engine.Comm()
	for im := range m.Boundaries {
		elems := m.Boundaries[im].Elements
		for i := range elems {
			sf := &elems[i]

			ind, ok := elemIndex[sf.VolElemGlobal]
			if !ok {
				parallel.Fatalf(comm,
					"Builder.remapBoundaries: face %d references unknown element %d",
					sf.GlobalID, sf.VolElemGlobal)
			}
			sf.VolElemIndex = ind

			// Boundary nodes never carry a periodic transformation.
			for j, n := range sf.Nodes {
				li, ok := pointIndex[mesh.PointKey{GlobalID: n, Donor: mesh.NoPeriodic()}]
				if !ok {
					parallel.Fatalf(comm,
						"Builder.remapBoundaries: node %d of face %d missing from the point map",
						n, sf.GlobalID)
				}
				sf.Nodes[j] = uint64(li)
			}
		}
		mesh.SortSurfaceElements(elems)
	}
}

// remapElementNodes converts the grid node IDs of every volume element,
// owned and halo, from global IDs to local point indices. Halo elements
// look their nodes up under their own periodic index.
func (b *Builder) remapElementNodes(m *mesh.Mesh, pointIndex map[mesh.PointKey]int) {
	comm := b.engine.Comm()
	for i := range m.Elements {
		el := &m.Elements[i]
		for j, n := range el.Nodes {
			li, ok := pointIndex[mesh.PointKey{GlobalID: n, Donor: el.Donor}]
			if !ok {
				parallel.Fatalf(comm,
					"Builder.remapElementNodes: node %d of element %d missing from the point map",
					n, el.GlobalID)
			}
			el.Nodes[j] = uint64(li)
		}
	}
}

// assignLocalDOFOffsets gives every element its local solution DOF offset:
// owned elements first, in the fixed global ID order they are stored in,
// halo elements directly after.
func assignLocalDOFOffsets(m *mesh.Mesh) {
	off := 0
	for i := range m.Elements {
		m.Elements[i].OffsetDOFsSolLocal = off
		off += m.Elements[i].NDOFsSol
	}
}

func dedupHaloKeys(keys []haloKey) []haloKey {
	out := keys[:0]
	for i := range keys {
		if len(out) == 0 || out[len(out)-1] != keys[i] {
			out = append(out, keys[i])
		}
	}
	return out
}

// invalidOffset marks the global DOF offset of halo elements, which is
// never communicated.
const invalidOffset = math.MaxUint64
