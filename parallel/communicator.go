// Package parallel provides the execution context and the message exchange
// primitives used to construct the distributed mesh. Concurrency is
// exclusively inter-rank message passing: no resource is mutated by more
// than one rank, and all cross-rank coordination travels in message
// payloads.
package parallel

import (
	"github.com/sirupsen/logrus"
)

// Communicator is the handle one rank uses to talk to its peers. It is
// passed explicitly into every component constructor; there is no ambient
// global communicator state.
//
// Send posts a message and may return before the destination has received
// it; Wait blocks until the destination has, and frees the (dest, tag)
// pair for reuse. Recv blocks until a matching message from source
// arrives. Message arrival order across different sources is unspecified;
// receivers disambiguate by source rank, never by receipt order.
type Communicator interface {
	Rank() int
	Size() int

	Send(data interface{}, dest, tag int) error
	Wait(dest, tag int) error
	Recv(data interface{}, source, tag int) error

	// Abort terminates the whole distributed computation. A rank that
	// detects a local inconsistency must not continue: its peers would
	// deadlock on outstanding communication.
	Abort(code int)
}

// Fatalf reports a detected inconsistency and aborts the process group.
// None of the protocol errors are recoverable locally, so there is no
// error return: this call does not come back.
func Fatalf(c Communicator, format string, args ...interface{}) {
	logrus.WithField("rank", c.Rank()).Errorf(format, args...)
	c.Abort(1)
}
