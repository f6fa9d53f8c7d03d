package parallel

import (
	"fmt"
	"sort"
)

// Engine performs variable-length record exchanges between ranks. A
// logical exchange occupies two message tags: tag for the participation
// reduction and tag+1 for the record payloads. Callers must keep the tag
// ranges of concurrent exchanges disjoint.
type Engine struct {
	comm Communicator
}

// NewEngine wraps a communicator.
func NewEngine(c Communicator) *Engine {
	return &Engine{comm: c}
}

// Comm returns the underlying communicator.
func (e *Engine) Comm() Communicator { return e.comm }

func (e *Engine) Rank() int { return e.comm.Rank() }
func (e *Engine) Size() int { return e.comm.Size() }

// AllToAllCounts is the participation reduction. counts[d] is the number
// of records this rank will send to rank d; the result r satisfies
// r[s] = number of records rank s will send here. Both the symmetric case
// (implicit peer-set sizing) and the asymmetric case (the receiving side
// re-deriving its peer set) reduce to this primitive.
func (e *Engine) AllToAllCounts(counts []int, tag int) ([]int, error) {
	n := e.comm.Size()
	if len(counts) != n {
		return nil, fmt.Errorf("parallel: counts has %d entries, want %d", len(counts), n)
	}

	for d := 0; d < n; d++ {
		if err := e.comm.Send(counts[d], d, tag); err != nil {
			return nil, err
		}
	}

	recv := make([]int, n)
	for s := 0; s < n; s++ {
		if err := e.comm.Recv(&recv[s], s, tag); err != nil {
			return nil, err
		}
	}

	for d := 0; d < n; d++ {
		if err := e.comm.Wait(d, tag); err != nil {
			return nil, err
		}
	}
	return recv, nil
}

// Exchange delivers one record to every destination in send and returns
// the records addressed to this rank, keyed by source rank. The sources
// are discovered through the participation reduction, so the destination
// set of the senders never has to be known globally. makeRecord allocates
// the value a received record is decoded into.
//
// All sends are posted before any receive is performed; completion of the
// sends is awaited collectively at the end.
func (e *Engine) Exchange(send map[int]interface{}, tag int,
	makeRecord func() interface{}) (map[int]interface{}, error) {

	n := e.comm.Size()
	counts := make([]int, n)
	for d := range send {
		if d < 0 || d >= n {
			return nil, fmt.Errorf("parallel: destination rank %d outside [0,%d)", d, n)
		}
		counts[d] = 1
	}

	incoming, err := e.AllToAllCounts(counts, tag)
	if err != nil {
		return nil, err
	}

	// Post all outgoing records, in deterministic destination order.
	dests := make([]int, 0, len(send))
	for d := range send {
		dests = append(dests, d)
	}
	sort.Ints(dests)
	for _, d := range dests {
		if err := e.comm.Send(send[d], d, tag+1); err != nil {
			return nil, err
		}
	}

	// Receive one record from every announced source.
	recv := make(map[int]interface{}, n)
	for s := 0; s < n; s++ {
		if incoming[s] == 0 {
			continue
		}
		rec := makeRecord()
		if err := e.comm.Recv(rec, s, tag+1); err != nil {
			return nil, err
		}
		recv[s] = rec
	}

	for _, d := range dests {
		if err := e.comm.Wait(d, tag+1); err != nil {
			return nil, err
		}
	}
	return recv, nil
}

// Barrier suspends the caller until every rank has reached it. Rank 0
// gathers a token from everyone, then releases them.
func (e *Engine) Barrier(tag int) error {
	n := e.comm.Size()
	rank := e.comm.Rank()
	if n == 1 {
		return nil
	}

	if rank == 0 {
		var token int
		for s := 1; s < n; s++ {
			if err := e.comm.Recv(&token, s, tag); err != nil {
				return err
			}
		}
		for d := 1; d < n; d++ {
			if err := e.comm.Send(0, d, tag+1); err != nil {
				return err
			}
		}
		for d := 1; d < n; d++ {
			if err := e.comm.Wait(d, tag+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := e.comm.Send(rank, 0, tag); err != nil {
		return err
	}
	if err := e.comm.Wait(0, tag); err != nil {
		return err
	}
	var token int
	return e.comm.Recv(&token, 0, tag+1)
}
