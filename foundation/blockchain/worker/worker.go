// Package worker implements the timed block production loop for the node.
package worker

import (
	"errors"
	"sync"
	"time"

	"github.com/solochain/solochain/foundation/blockchain/consensus"
	"github.com/solochain/solochain/foundation/blockchain/state"
)

// Worker manages the production loop. One block is produced per cycle and
// shutdown is only observed between cycles, a block that started producing
// always runs to completion.
type Worker struct {
	state     *state.State
	wg        sync.WaitGroup
	shut      chan struct{}
	produce   chan bool
	evHandler state.EventHandler
}

// Run creates a worker, registers it with the state package and starts the
// production loop.
func Run(st *state.State, evHandler state.EventHandler) {
	w := Worker{
		state:     st,
		shut:      make(chan struct{}),
		produce:   make(chan bool, 1),
		evHandler: evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	w.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.productionOperations()
	}()

	<-hasStarted
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work. An in-flight
// production cycle completes first.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	close(w.shut)
	w.wg.Wait()
}

// SignalStartProduction kicks off a production cycle without waiting for
// the round interval. If a signal is already pending this does nothing.
func (w *Worker) SignalStartProduction() {
	select {
	case w.produce <- true:
		w.evHandler("worker: SignalStartProduction: production signaled")
	default:
	}
}

// =============================================================================

// productionOperations runs the production cycles. Each cycle waits the
// round interval minus how long the previous cycle took, so block spacing
// stays close to the interval even when production is slow.
func (w *Worker) productionOperations() {
	w.evHandler("worker: productionOperations: G started")
	defer w.evHandler("worker: productionOperations: G completed")

	roundInterval := w.state.RoundInterval()
	var lastDuration time.Duration

	for {
		timeToWait := roundInterval - lastDuration
		if timeToWait < 0 {
			timeToWait = 0
		}

		timer := time.NewTimer(timeToWait)
		select {
		case <-timer.C:
		case <-w.produce:
			timer.Stop()
		case <-w.shut:
			timer.Stop()
			w.evHandler("worker: productionOperations: received shut signal")
			return
		}

		t := time.Now()
		w.runProductionCycle()
		lastDuration = time.Since(t)
	}
}

// runProductionCycle produces and commits one block.
func (w *Worker) runProductionCycle() {
	w.evHandler("worker: runProductionCycle: started")
	defer w.evHandler("worker: runProductionCycle: completed")

	block, err := w.state.ProduceNextBlock()
	if err != nil {
		switch {
		case errors.Is(err, consensus.ErrEmptyMempool):
			w.evHandler("worker: runProductionCycle: WARNING: nothing to produce")
		default:
			w.evHandler("worker: runProductionCycle: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runProductionCycle: produced block: height[%d] round[%d] hash[%s]", block.Header.Height, block.Header.Round, block.Hash())
}
