package worker_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/solochain/solochain/foundation/blockchain/database/storage"
	"github.com/solochain/solochain/foundation/blockchain/genesis"
	"github.com/solochain/solochain/foundation/blockchain/state"
	"github.com/solochain/solochain/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	operator = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

// =============================================================================

func Test_ProductionLoop(t *testing.T) {
	t.Log("Given the need to produce blocks on a timed loop.")
	{
		t.Logf("\tTest 0:\tWhen running the loop and shutting it down.")
		{
			st := newState(t)

			worker.Run(st, func(v string, args ...any) {})
			if st.Worker == nil {
				t.Fatalf("\t%s\tTest 0:\tShould register the worker with the state.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould register the worker with the state.", success)

			before := len(st.UnspentRecords())

			// Skip the first wait so the test doesn't depend on the round
			// interval.
			st.Worker.SignalStartProduction()

			deadline := time.Now().Add(5 * time.Second)
			for st.LatestBlock().Header.Height == 0 {
				if time.Now().After(deadline) {
					t.Fatalf("\t%s\tTest 0:\tShould produce a block within the deadline.", failed)
				}
				time.Sleep(10 * time.Millisecond)
			}
			t.Logf("\t%s\tTest 0:\tShould produce a block within the deadline.", success)

			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to shut the node down: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to shut the node down.", success)

			// With an empty mempool every produced block is a self transfer,
			// so the operator's record count never changes.
			if after := len(st.UnspentRecords()); after != before {
				t.Fatalf("\t%s\tTest 0:\tShould keep the tracked record count unchanged, got %d, exp %d.", failed, after, before)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the tracked record count unchanged.", success)

			height := st.LatestBlock().Header.Height
			if height < 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have advanced the chain, got height %d.", failed, height)
			}
			t.Logf("\t%s\tTest 0:\tShould have advanced the chain.", success)
		}
	}
}

// =============================================================================

func newState(t *testing.T) *state.State {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the private key: %v", failed, err)
	}

	serializer, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create storage: %v", failed, err)
	}

	gen := genesis.Genesis{
		Date:           time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        1,
		TransPerBlock:  10,
		RoundInterval:  1,
		AnchorTime:     25,
		BlocksPerEpoch: 256,
		CoinbaseTarget: 1 << 29,
		Balances: map[string]uint64{
			operator: 1_000_000,
		},
	}

	st, err := state.New(state.Config{
		OperatorKey: pk,
		Genesis:     gen,
		Storage:     serializer,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	return st
}
