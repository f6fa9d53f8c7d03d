package distribute

import (
	"sort"

	"github.com/parfem/parmesh/mesh"
	"github.com/parfem/parmesh/parallel"
)

// Schedule is the steady-state communication schedule of one rank: the
// peer ranks it exchanges solution DOFs with, and per peer the ordered
// local DOF indices to receive and to send. The receive order of a peer
// matches that peer's send order element for element. The schedule is
// built once and reused unchanged by every solver iteration.
type Schedule struct {
	Peers []int
	Recv  [][]int
	Send  [][]int
}

// PeerIndex returns the position of rank p in Peers, or -1.
func (s *Schedule) PeerIndex(p int) int {
	for i, r := range s.Peers {
		if r == p {
			return i
		}
	}
	return -1
}

// buildSchedule derives the send/receive index lists from the halo
// ownership of the finished local mesh. Every halo element contributes
// its local DOF range to the receive list of its rank of origin; the
// requested global element IDs are exchanged so each origin can expand
// them, through its owned elements, into the matching send list.
func (b *Builder) buildSchedule(m *mesh.Mesh, elemIndex map[uint64]int) *Schedule {
	comm := b.engine.Comm()

	// Receive side: group the halo elements by rank of origin. The slot
	// order of the halo layer fixes the receive order.
	reqIDs := make(map[int][]uint64)
	recvIdx := make(map[int][]int)
	for i := m.NumOwned; i < len(m.Elements); i++ {
		el := &m.Elements[i]
		p := el.RankOriginal
		reqIDs[p] = append(reqIDs[p], el.GlobalID)
		for j := 0; j < el.NDOFsSol; j++ {
			recvIdx[p] = append(recvIdx[p], el.OffsetDOFsSolLocal+j)
		}
	}

	// Asymmetric exchange of the requested IDs: the responding side
	// re-derives its peer set from the participation reduction.
	send := make(map[int]interface{}, len(reqIDs))
	for d, ids := range reqIDs {
		send[d] = &scheduleRequest{GlobalIDs: ids}
	}
	rawReq, err := b.engine.Exchange(send, tagSchedule,
		func() interface{} { return new(scheduleRequest) })
	if err != nil {
		parallel.Fatalf(comm, "Builder.buildSchedule: %v", err)
	}

	// Send side: expand every requested global ID to the local DOF range
	// of the owned element, preserving the requester's order.
	sendIdx := make(map[int][]int, len(rawReq))
	for src, r := range rawReq {
		req := r.(*scheduleRequest)
		idx := make([]int, 0, len(req.GlobalIDs))
		for _, gid := range req.GlobalIDs {
			li, ok := elemIndex[gid]
			if !ok {
				parallel.Fatalf(comm,
					"Builder.buildSchedule: rank %d requested element %d which is not owned here",
					src, gid)
			}
			el := &m.Elements[li]
			for j := 0; j < el.NDOFsSol; j++ {
				idx = append(idx, el.OffsetDOFsSolLocal+j)
			}
		}
		sendIdx[src] = idx
	}

	// The peer list is the union of the ranks halos come from and the
	// ranks that requested data; with face-neighbor halo layers the two
	// coincide, but the schedule does not rely on it.
	peerSet := make(map[int]struct{}, len(reqIDs)+len(sendIdx))
	for p := range reqIDs {
		peerSet[p] = struct{}{}
	}
	for p := range sendIdx {
		peerSet[p] = struct{}{}
	}
	peers := make([]int, 0, len(peerSet))
	for p := range peerSet {
		peers = append(peers, p)
	}
	sort.Ints(peers)

	sched := &Schedule{
		Peers: peers,
		Recv:  make([][]int, len(peers)),
		Send:  make([][]int, len(peers)),
	}
	for i, p := range peers {
		sched.Recv[i] = recvIdx[p]
		sched.Send[i] = sendIdx[p]
	}

	b.log.Debugf("communication schedule: %d peers", len(peers))
	return sched
}
