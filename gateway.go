package escrow

import (
	"context"
	"sync"

	"github.com/sibabalw/payments-app-sub003/model"
)

// PaymentGateway executes the external fund movement for a job. The engine
// treats it as opaque: any returned error fails the job, success completes it.
type PaymentGateway interface {
	Execute(ctx context.Context, job *model.Job) error
}

// RecordingGateway is the default gateway. It performs no external call and
// records the jobs it was asked to execute, which is what local development
// and the engine tests need.
type RecordingGateway struct {
	mu       sync.Mutex
	executed []string
	failWith error
}

func NewRecordingGateway() *RecordingGateway {
	return &RecordingGateway{}
}

// FailWith makes every subsequent Execute return the given error.
func (g *RecordingGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

func (g *RecordingGateway) Execute(_ context.Context, job *model.Job) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	g.executed = append(g.executed, job.JobID)
	return nil
}

// Executed returns the IDs of jobs executed so far.
func (g *RecordingGateway) Executed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.executed))
	copy(out, g.executed)
	return out
}
