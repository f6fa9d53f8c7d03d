package distribute

import (
	"sort"

	"github.com/parfem/parmesh/mesh"
	"github.com/parfem/parmesh/parallel"
)

// resolveHalos runs the second communication round: every halo entity is
// requested from its rank of origin, the returned element data is stored
// into the pre-allocated halo slots, and the returned points are
// deduplicated against the locally known point set. The method returns
// the periodic halo points still awaiting geometric matching, plus the
// map from (global ID, periodic index) to local point index covering
// everything known so far.
func (b *Builder) resolveHalos(in *InputMesh, m *mesh.Mesh,
	halos []haloKey) ([]mesh.Point, map[mesh.PointKey]int) {

	rank := b.engine.Rank()
	size := b.engine.Size()
	comm := b.engine.Comm()

	// Group the halo entities by rank of origin in the original
	// partitioning, remembering the local slot each reply must fill.
	requests := make(map[int]*haloRequest)
	for i, h := range halos {
		r := originRank(in.ElemOffsets, h.GlobalID)
		if r < 0 || r >= size {
			parallel.Fatalf(comm,
				"Builder.resolveHalos: halo element %d outside the global partitioning", h.GlobalID)
		}
		req := requests[r]
		if req == nil {
			req = &haloRequest{}
			requests[r] = req
		}
		req.Entries = append(req.Entries, haloEntry{
			GlobalID:  h.GlobalID,
			Donor:     h.Donor,
			LocalSlot: m.NumOwned + i,
		})
	}

	// Asymmetric exchange: the responding ranks discover who is asking
	// through the engine's participation reduction.
	send := make(map[int]interface{}, len(requests))
	for d, req := range requests {
		send[d] = req
	}
	rawReq, err := b.engine.Exchange(send, tagHaloRequest,
		func() interface{} { return new(haloRequest) })
	if err != nil {
		parallel.Fatalf(comm, "Builder.resolveHalos: request exchange: %v", err)
	}

	// Answer every requester from the input slice of the original
	// partitioning.
	globalToLocalNode := make(map[uint64]int, len(in.NodeIDs))
	for i, id := range in.NodeIDs {
		globalToLocalNode[id] = i
	}

	replies := make(map[int]interface{}, len(rawReq))
	for src, r := range rawReq {
		req := r.(*haloRequest)
		rep := &haloReply{}

		var nodeKeys []mesh.PointKey
		for _, en := range req.Entries {
			loc, ok := in.localElemIndex(rank, en.GlobalID)
			if !ok {
				parallel.Fatalf(comm,
					"Builder.resolveHalos: rank %d requested element %d outside this rank's input range",
					src, en.GlobalID)
			}
			el := &in.Elements[loc]

			rep.Elements = append(rep.Elements, haloElement{
				GlobalID:     en.GlobalID,
				LocalSlot:    en.LocalSlot,
				RankOriginal: el.Color,
				Donor:        en.Donor,
				Type:         el.Type,
				PolyGrid:     el.PolyGrid,
				PolySol:      el.PolySol,
				NDOFsGrid:    el.NDOFsGrid,
				NDOFsSol:     el.NDOFsSol,
				NumFaces:     len(el.Neighbors),
				Nodes:        append([]uint64(nil), el.Nodes...),
			})

			for _, n := range el.Nodes {
				nodeKeys = append(nodeKeys, mesh.PointKey{GlobalID: n, Donor: en.Donor})
			}
		}

		sort.Slice(nodeKeys, func(i, j int) bool {
			if nodeKeys[i].GlobalID != nodeKeys[j].GlobalID {
				return nodeKeys[i].GlobalID < nodeKeys[j].GlobalID
			}
			return nodeKeys[i].Donor.Less(nodeKeys[j].Donor)
		})
		nodeKeys = dedupPointKeys(nodeKeys)

		for _, k := range nodeKeys {
			li, ok := globalToLocalNode[k.GlobalID]
			if !ok {
				parallel.Fatalf(comm,
					"Builder.resolveHalos: node %d not found in the input node table", k.GlobalID)
			}
			wn := wireNode{GlobalID: k.GlobalID, Donor: k.Donor}
			copy(wn.Coords[:], in.NodeCoords[li])
			rep.Nodes = append(rep.Nodes, wn)
		}

		replies[src] = rep
	}

	rawRep, err := b.engine.Exchange(replies, tagHaloReply,
		func() interface{} { return new(haloReply) })
	if err != nil {
		parallel.Fatalf(comm, "Builder.resolveHalos: reply exchange: %v", err)
	}

	// Store the returned element data directly into the pre-allocated
	// halo slots and gather the halo points.
	var haloPoints []mesh.Point
	sources := make([]int, 0, len(rawRep))
	for s := range rawRep {
		sources = append(sources, s)
	}
	sort.Ints(sources)

	for _, s := range sources {
		rep := rawRep[s].(*haloReply)

		for i := range rep.Elements {
			he := &rep.Elements[i]
			if he.LocalSlot < m.NumOwned || he.LocalSlot >= len(m.Elements) {
				parallel.Fatalf(comm,
					"Builder.resolveHalos: reply for element %d targets invalid slot %d",
					he.GlobalID, he.LocalSlot)
			}
			m.Elements[he.LocalSlot] = mesh.VolumeElement{
				Type:                he.Type,
				PolyGrid:            he.PolyGrid,
				PolySol:             he.PolySol,
				NDOFsGrid:           he.NDOFsGrid,
				NDOFsSol:            he.NDOFsSol,
				NumFaces:            he.NumFaces,
				GlobalID:            he.GlobalID,
				RankOriginal:        he.RankOriginal,
				Donor:               he.Donor,
				Owned:               false,
				JacConstant:         false,
				Nodes:               append([]uint64(nil), he.Nodes...),
				OffsetDOFsSolGlobal: invalidOffset,
			}
		}

		for i := range rep.Nodes {
			wn := &rep.Nodes[i]
			haloPoints = append(haloPoints, mesh.Point{
				GlobalID: wn.GlobalID,
				Donor:    wn.Donor,
				Coords:   wn.Coords,
			})
		}
	}

	haloPoints = mesh.DedupPoints(haloPoints)

	// A non-periodic halo point coincident with a locally known point is
	// not a true halo: the geometry is already present, typically because
	// it sits on a processor interface shared by a local element.
	// Periodic images are never merged here; they are matched
	// geometrically afterwards.
	invalidated := 0
	kept := haloPoints[:0]
	var periodicPts []mesh.Point
	for _, p := range haloPoints {
		if p.Donor.Valid {
			periodicPts = append(periodicPts, p)
			continue
		}
		if mesh.ContainsIdentity(m.Points, p) {
			invalidated++
			continue
		}
		kept = append(kept, p)
	}
	if invalidated > 0 {
		b.log.Debugf("halo resolution: %d shared-interface points already local", invalidated)
	}

	// The surviving non-periodic halo points join the local collection.
	m.Points = append(m.Points, kept...)

	pointIndex := make(map[mesh.PointKey]int, len(m.Points))
	for i := range m.Points {
		pointIndex[m.Points[i].Key()] = i
	}

	return periodicPts, pointIndex
}

func dedupPointKeys(keys []mesh.PointKey) []mesh.PointKey {
	out := keys[:0]
	for i := range keys {
		if len(out) == 0 || out[len(out)-1] != keys[i] {
			out = append(out, keys[i])
		}
	}
	return out
}
