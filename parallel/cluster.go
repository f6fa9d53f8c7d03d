package parallel

import (
	"fmt"
	"reflect"
	"sync"
)

// Cluster is an in-process communicator fabric. Every rank is represented
// by one goroutine holding the Communicator returned by Comm. Messages are
// handed over by direct value assignment, without serialization, which is
// also the degenerate single-process execution mode: NewCluster(1).Comm(0)
// behaves like a sequential run where every exchange is a local copy.
type Cluster struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	queues  map[mailboxKey][]interface{}
	aborted bool
}

type mailboxKey struct {
	src, dst, tag int
}

// NewCluster creates a fabric for size ranks.
func NewCluster(size int) *Cluster {
	c := &Cluster{
		size:   size,
		queues: make(map[mailboxKey][]interface{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Comm returns the communicator of the given rank.
func (c *Cluster) Comm(rank int) Communicator {
	if rank < 0 || rank >= c.size {
		panic(fmt.Sprintf("parallel: rank %d out of range [0,%d)", rank, c.size))
	}
	return &clusterComm{cluster: c, rank: rank}
}

type clusterComm struct {
	cluster *Cluster
	rank    int
}

func (cc *clusterComm) Rank() int { return cc.rank }
func (cc *clusterComm) Size() int { return cc.cluster.size }

func (cc *clusterComm) Send(data interface{}, dest, tag int) error {
	c := cc.cluster
	if dest < 0 || dest >= c.size {
		return fmt.Errorf("parallel: send to rank %d outside [0,%d)", dest, c.size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		panic("parallel: communication after abort")
	}
	key := mailboxKey{src: cc.rank, dst: dest, tag: tag}
	c.queues[key] = append(c.queues[key], data)
	c.cond.Broadcast()
	return nil
}

// Wait is trivially satisfied: delivery into the destination mailbox is
// immediate and (dest, tag) pairs are always reusable.
func (cc *clusterComm) Wait(dest, tag int) error { return nil }

func (cc *clusterComm) Recv(data interface{}, source, tag int) error {
	c := cc.cluster
	if source < 0 || source >= c.size {
		return fmt.Errorf("parallel: receive from rank %d outside [0,%d)", source, c.size)
	}

	key := mailboxKey{src: source, dst: cc.rank, tag: tag}

	c.mu.Lock()
	for len(c.queues[key]) == 0 {
		if c.aborted {
			c.mu.Unlock()
			panic("parallel: communication after abort")
		}
		c.cond.Wait()
	}
	msg := c.queues[key][0]
	c.queues[key] = c.queues[key][1:]
	c.mu.Unlock()

	return assign(data, msg)
}

// Abort wakes every blocked rank and panics. In-process, a protocol abort
// is a programming error that must surface in tests rather than terminate
// the test binary silently.
func (cc *clusterComm) Abort(code int) {
	c := cc.cluster
	c.mu.Lock()
	c.aborted = true
	c.cond.Broadcast()
	c.mu.Unlock()
	panic(fmt.Sprintf("parallel: rank %d aborted with code %d", cc.rank, code))
}

// assign stores a received message into the pointer dst, dereferencing the
// source when sender and receiver both used pointers.
func assign(dst, src interface{}) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("parallel: receive target must be a non-nil pointer, got %T", dst)
	}
	sv := reflect.ValueOf(src)
	if sv.Kind() == reflect.Ptr && sv.Type() == dv.Type() {
		sv = sv.Elem()
	}
	if !sv.Type().AssignableTo(dv.Elem().Type()) {
		return fmt.Errorf("parallel: cannot deliver %T into %T", src, dst)
	}
	dv.Elem().Set(sv)
	return nil
}
