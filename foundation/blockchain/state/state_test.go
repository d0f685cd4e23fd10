package state_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/database/storage"
	"github.com/solochain/solochain/foundation/blockchain/genesis"
	"github.com/solochain/solochain/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	pkHexKey  = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	operator  = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	recipient = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

// =============================================================================

func Test_Bootstrap(t *testing.T) {
	t.Log("Given the need to bootstrap a fresh chain.")
	{
		t.Logf("\tTest 0:\tWhen starting a node over empty storage.")
		{
			st := newState(t)
			defer st.Shutdown()

			latest := st.LatestBlock()
			if latest.Header.Height != 0 || latest.Header.Round != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould start the chain at height and round zero.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould start the chain at height and round zero.", success)

			records := st.FindRecords(operator, database.RecordsUnspent)
			if len(records) != 1 || records[0].Balance != 1_000_000 {
				t.Fatalf("\t%s\tTest 0:\tShould mint the genesis balance for the operator.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould mint the genesis balance for the operator.", success)

			if len(st.UnspentRecords()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould track the minted record.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould track the minted record.", success)
		}
	}
}

func Test_PourAndProduce(t *testing.T) {
	t.Log("Given the need to pour funds and confirm them in a block.")
	{
		t.Logf("\tTest 0:\tWhen pouring to a recipient and producing the block.")
		{
			st := newState(t)
			defer st.Shutdown()

			txID, err := st.SubmitPour(recipient, 50_000)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to stage a pour: %v", failed, err)
			}
			if txID == "" {
				t.Fatalf("\t%s\tTest 0:\tShould return the transaction id.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to stage a pour.", success)

			block, err := st.ProduceNextBlock()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to produce the block: %v", failed, err)
			}
			if block.Header.Height != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould commit the block at height 1, got %d.", failed, block.Header.Height)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to produce the block.", success)

			recipientRecords := st.FindRecords(recipient, database.RecordsUnspent)
			if len(recipientRecords) != 1 || recipientRecords[0].Balance != 50_000 {
				t.Fatalf("\t%s\tTest 0:\tShould confirm the recipient's record.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould confirm the recipient's record.", success)

			if st.MempoolLength() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the mempool empty.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the mempool empty.", success)
		}

		t.Logf("\tTest 1:\tWhen producing with an empty mempool.")
		{
			st := newState(t)
			defer st.Shutdown()

			before := len(st.UnspentRecords())

			block, err := st.ProduceNextBlock()
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould produce a block from a self transfer: %v", failed, err)
			}
			if len(block.Trans.Values()) != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould carry exactly the self transfer.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould produce a block from a self transfer.", success)

			if after := len(st.UnspentRecords()); after != before {
				t.Fatalf("\t%s\tTest 1:\tShould keep the tracked record count unchanged, got %d, exp %d.", failed, after, before)
			}
			t.Logf("\t%s\tTest 1:\tShould keep the tracked record count unchanged.", success)
		}
	}
}

func Test_Deploy(t *testing.T) {
	t.Log("Given the need to deploy a program.")
	{
		t.Logf("\tTest 0:\tWhen deploying and confirming a program.")
		{
			st := newState(t)
			defer st.Shutdown()

			program := database.Program{
				ProgramID: "hello",
				Source:    "function main() -> u64 { return 1u64; }",
			}

			if _, err := st.SubmitDeploy(program); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to stage a deployment: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to stage a deployment.", success)

			if _, err := st.ProduceNextBlock(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to produce the block: %v", failed, err)
			}

			deployed, err := st.GetProgram("hello")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the deployed program: %v", failed, err)
			}
			if deployed.Source != program.Source {
				t.Fatalf("\t%s\tTest 0:\tShould store the program source.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to read the deployed program.", success)

			// A second deployment under the same id is rejected.
			if _, err := st.SubmitDeploy(program); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a repeated deployment.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a repeated deployment.", success)
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
