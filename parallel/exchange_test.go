package parallel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// runRanks executes fn once per rank of an in-process cluster and waits for
// all of them.
func runRanks(size int, fn func(rank int, c Communicator)) {
	cluster := NewCluster(size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			fn(r, cluster.Comm(r))
		}(r)
	}
	wg.Wait()
}

type payload struct {
	From   int
	Values []uint64
}

func TestClusterSendRecv(t *testing.T) {
	runRanks(2, func(rank int, c Communicator) {
		assert.Equal(t, rank, c.Rank())
		assert.Equal(t, 2, c.Size())

		other := 1 - rank
		out := &payload{From: rank, Values: []uint64{uint64(rank), 42}}
		assert.Nil(t, c.Send(out, other, 7))

		in := new(payload)
		assert.Nil(t, c.Recv(in, other, 7))
		assert.Equal(t, other, in.From)
		assert.Equal(t, uint64(other), in.Values[0])

		assert.Nil(t, c.Wait(other, 7))
	})
}

func TestClusterSelfSend(t *testing.T) {
	runRanks(1, func(rank int, c Communicator) {
		out := &payload{From: 0, Values: []uint64{3}}
		assert.Nil(t, c.Send(out, 0, 1))
		in := new(payload)
		assert.Nil(t, c.Recv(in, 0, 1))
		assert.Equal(t, []uint64{3}, in.Values)
	})
}

func TestAllToAllCounts(t *testing.T) {
	// counts[d] = rank*10 + d, so the transpose must come back.
	runRanks(3, func(rank int, c Communicator) {
		e := NewEngine(c)
		counts := make([]int, 3)
		for d := range counts {
			counts[d] = rank*10 + d
		}
		got, err := e.AllToAllCounts(counts, 20)
		assert.Nil(t, err)
		for s := 0; s < 3; s++ {
			assert.Equal(t, s*10+rank, got[s])
		}
	})
}

func TestExchangeAsymmetric(t *testing.T) {
	// Only rank 0 sends, to ranks 1 and 2. The receivers learn their
	// sources from the participation reduction alone.
	runRanks(3, func(rank int, c Communicator) {
		e := NewEngine(c)
		send := map[int]interface{}{}
		if rank == 0 {
			send[1] = &payload{From: 0, Values: []uint64{1}}
			send[2] = &payload{From: 0, Values: []uint64{2}}
		}
		recv, err := e.Exchange(send, 30, func() interface{} { return new(payload) })
		assert.Nil(t, err)

		if rank == 0 {
			assert.Equal(t, 0, len(recv))
		} else {
			assert.Equal(t, 1, len(recv))
			p := recv[0].(*payload)
			assert.Equal(t, 0, p.From)
			assert.Equal(t, uint64(rank), p.Values[0])
		}
	})
}

func TestExchangeSymmetric(t *testing.T) {
	runRanks(4, func(rank int, c Communicator) {
		e := NewEngine(c)
		send := map[int]interface{}{}
		for d := 0; d < 4; d++ {
			send[d] = &payload{From: rank, Values: []uint64{uint64(rank*4 + d)}}
		}
		recv, err := e.Exchange(send, 40, func() interface{} { return new(payload) })
		assert.Nil(t, err)
		assert.Equal(t, 4, len(recv))
		for s := 0; s < 4; s++ {
			p := recv[s].(*payload)
			assert.Equal(t, s, p.From)
			assert.Equal(t, uint64(s*4+rank), p.Values[0])
		}
	})
}

func TestBarrier(t *testing.T) {
	var mu sync.Mutex
	before, after := 0, 0
	runRanks(4, func(rank int, c Communicator) {
		e := NewEngine(c)
		mu.Lock()
		before++
		mu.Unlock()

		assert.Nil(t, e.Barrier(50))

		// Everyone must have entered the barrier before anyone leaves it.
		mu.Lock()
		assert.Equal(t, 4, before)
		after++
		mu.Unlock()
	})
	assert.Equal(t, 4, after)
}

func TestSequentialExchange(t *testing.T) {
	// A single-rank cluster degenerates to local copies.
	runRanks(1, func(rank int, c Communicator) {
		e := NewEngine(c)
		send := map[int]interface{}{0: &payload{From: 0, Values: []uint64{99}}}
		recv, err := e.Exchange(send, 60, func() interface{} { return new(payload) })
		assert.Nil(t, err)
		assert.Equal(t, 1, len(recv))
		assert.Equal(t, uint64(99), recv[0].(*payload).Values[0])
		assert.Nil(t, e.Barrier(70))
	})
}
