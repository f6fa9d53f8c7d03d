package parallel

import (
	"os"

	"github.com/btracey/mpi"
	"github.com/sirupsen/logrus"
)

// MPIComm adapts the mpi package to the Communicator interface. One
// process runs per rank; messages are gob-encoded and exchanged over the
// network established by mpi.Init.
type MPIComm struct{}

// NewMPIComm initializes the network and returns the communicator of this
// process. mpi flags must have been parsed by the caller.
func NewMPIComm() (*MPIComm, error) {
	if err := mpi.Init(); err != nil {
		return nil, err
	}
	return &MPIComm{}, nil
}

// Finalize shuts the network down. No communication may follow.
func (m *MPIComm) Finalize() {
	mpi.Finalize()
}

func (m *MPIComm) Rank() int { return mpi.Rank() }
func (m *MPIComm) Size() int { return mpi.Size() }

func (m *MPIComm) Send(data interface{}, dest, tag int) error {
	return mpi.Send(data, dest, tag)
}

func (m *MPIComm) Wait(dest, tag int) error {
	return mpi.Wait(dest, tag)
}

func (m *MPIComm) Recv(data interface{}, source, tag int) error {
	return mpi.Receive(data, source, tag)
}

// Abort terminates this process immediately. Dropping the connections
// takes the rest of the process group down; there is no recovery path, by
// the same reasoning that makes every protocol inconsistency fatal.
func (m *MPIComm) Abort(code int) {
	logrus.WithField("rank", mpi.Rank()).Errorf("aborting distributed run, code %d", code)
	mpi.Finalize()
	os.Exit(code)
}
