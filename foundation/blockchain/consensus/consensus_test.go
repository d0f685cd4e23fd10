package consensus_test

import (
	"crypto/ecdsa"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/solochain/solochain/foundation/blockchain/consensus"
	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/database/storage"
	"github.com/solochain/solochain/foundation/blockchain/genesis"
	"github.com/solochain/solochain/foundation/blockchain/mempool"
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

// minFee is a fee large enough to cover the wire size of any transaction
// built by these tests.
const minFee = 10_000

// =============================================================================

func Test_ProduceNextBlock(t *testing.T) {
	t.Log("Given the need to produce a block from staged transactions.")
	{
		t.Logf("\tTest 0:\tWhen staging one transfer and running a full cycle.")
		{
			engine, db, mp, pk := newEngine(t)

			tx := newTransferTx(t, db, pk, 0)
			if err := engine.AddUnconfirmedTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to stage the transfer: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to stage the transfer.", success)

			block, err := engine.ProposeNextBlock(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to propose a block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to propose a block.", success)

			if err := engine.CheckNextBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the block it proposed: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the block it proposed.", success)

			if err := engine.AdvanceToNextBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to commit the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to commit the block.", success)

			latest := db.LatestBlock()
			if latest.Header.Height != 1 || latest.Header.Round != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould advance height and round, got height %d round %d.", failed, latest.Header.Height, latest.Header.Round)
			}
			t.Logf("\t%s\tTest 0:\tShould advance height and round.", success)

			if mp.Count() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the mempool empty, got %d.", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould leave the mempool empty.", success)
		}

		t.Logf("\tTest 1:\tWhen proposing with an empty mempool.")
		{
			engine, _, _, pk := newEngine(t)

			if _, err := engine.ProposeNextBlock(pk); !errors.Is(err, consensus.ErrEmptyMempool) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse to propose from an empty mempool: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse to propose from an empty mempool.", success)
		}
	}
}

func Test_DoubleSpend(t *testing.T) {
	t.Log("Given the need to reject spending the same record twice.")
	{
		t.Logf("\tTest 0:\tWhen both spends are staged before confirmation.")
		{
			engine, db, _, pk := newEngine(t)

			record := unspentRecord(t, db)
			tx1 := transferOf(t, pk, record)
			tx2 := transferOf(t, pk, record)

			if err := engine.AddUnconfirmedTransaction(tx1); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to stage the first spend: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to stage the first spend.", success)

			err := engine.AddUnconfirmedTransaction(tx2)
			if !errors.Is(err, consensus.ErrDuplicate) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the second spend as a conflict: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the second spend as a conflict.", success)
		}

		t.Logf("\tTest 1:\tWhen the second spend arrives after confirmation.")
		{
			engine, db, _, pk := newEngine(t)

			record := unspentRecord(t, db)
			tx1 := transferOf(t, pk, record)

			if err := engine.AddUnconfirmedTransaction(tx1); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to stage the first spend: %v", failed, err)
			}

			block, err := engine.ProposeNextBlock(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to propose a block: %v", failed, err)
			}
			if err := engine.AdvanceToNextBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to commit the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to confirm the first spend.", success)

			tx2 := transferOf(t, pk, record)
			err = engine.AddUnconfirmedTransaction(tx2)
			if !errors.Is(err, consensus.ErrDuplicate) {
				t.Fatalf("\t%s\tTest 1:\tShould reject a spend of a confirmed record: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a spend of a confirmed record.", success)
		}
	}
}

func Test_RoundSequencing(t *testing.T) {
	t.Log("Given the need to enforce rounds advance by exactly one.")
	{
		t.Logf("\tTest 0:\tWhen a proposed block skips a round.")
		{
			engine, db, _, pk := newEngine(t)

			tx := newTransferTx(t, db, pk, 0)
			if err := engine.AddUnconfirmedTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to stage the transfer: %v", failed, err)
			}

			block, err := engine.ProposeNextBlock(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to propose a block: %v", failed, err)
			}

			header := block.Header
			header.Round = db.LatestBlock().Header.Round + 2

			skipped, err := database.NewBlock(pk, header, block.Trans.Values())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to rebuild the block: %v", failed, err)
			}

			err = engine.CheckNextBlock(skipped)
			if err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a block that skips a round.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a block that skips a round.", success)

			ve := consensus.GetValidationError(err)
			if ve == nil || ve.Rule != consensus.RuleSequencing {
				t.Fatalf("\t%s\tTest 0:\tShould name the sequencing rule, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould name the sequencing rule.", success)
		}

		t.Logf("\tTest 1:\tWhen a proposed block repeats the latest round.")
		{
			engine, db, _, pk := newEngine(t)

			tx := newTransferTx(t, db, pk, 0)
			if err := engine.AddUnconfirmedTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to stage the transfer: %v", failed, err)
			}

			block, err := engine.ProposeNextBlock(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to propose a block: %v", failed, err)
			}

			header := block.Header
			header.Round = db.LatestBlock().Header.Round

			repeated, err := database.NewBlock(pk, header, block.Trans.Values())
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to rebuild the block: %v", failed, err)
			}

			err = engine.CheckNextBlock(repeated)
			ve := consensus.GetValidationError(err)
			if ve == nil || ve.Rule != consensus.RuleSequencing {
				t.Fatalf("\t%s\tTest 1:\tShould reject a block that repeats the round: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a block that repeats the round.", success)
		}
	}
}

func Test_ConcurrentSubmissions(t *testing.T) {
	t.Log("Given the need to serialize submissions spending the same record.")
	{
		t.Logf("\tTest 0:\tWhen many goroutines submit conflicting spends at once.")
		{
			engine, db, mp, pk := newEngine(t)

			record := unspentRecord(t, db)

			const submissions = 8
			trans := make([]database.BlockTx, submissions)
			for i := range trans {
				trans[i] = transferOf(t, pk, record)
			}

			var wg sync.WaitGroup
			var staged int32

			wg.Add(submissions)
			for _, tx := range trans {
				go func(tx database.BlockTx) {
					defer wg.Done()
					if err := engine.AddUnconfirmedTransaction(tx); err == nil {
						atomic.AddInt32(&staged, 1)
					}
				}(tx)
			}
			wg.Wait()

			if staged != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould stage exactly one spend, got %d.", failed, staged)
			}
			t.Logf("\t%s\tTest 0:\tShould stage exactly one spend.", success)

			if mp.Count() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould hold exactly one transaction, got %d.", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould hold exactly one transaction.", success)
		}
	}
}

func Test_FailedCheckClearsMempool(t *testing.T) {
	t.Log("Given the need to clear the mempool when a production cycle fails.")
	{
		t.Logf("\tTest 0:\tWhen a proposed block is tampered with.")
		{
			engine, db, mp, pk := newEngine(t)

			tx := newTransferTx(t, db, pk, 0)
			if err := engine.AddUnconfirmedTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to stage the transfer: %v", failed, err)
			}

			block, err := engine.ProposeNextBlock(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to propose a block: %v", failed, err)
			}

			block.Header.CoinbaseTarget++

			err = engine.AdvanceToNextBlock(block)
			if err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject the tampered block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the tampered block.", success)

			ve := consensus.GetValidationError(err)
			if ve == nil || ve.Rule != consensus.RuleTargets {
				t.Fatalf("\t%s\tTest 0:\tShould name the targets rule, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould name the targets rule.", success)

			if mp.Count() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould clear the mempool, got %d.", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould clear the mempool.", success)
		}
	}
}

func Test_FeeRule(t *testing.T) {
	t.Log("Given the need to enforce the declared fee covers the wire size.")
	{
		t.Logf("\tTest 0:\tWhen staging a transfer with an insufficient fee.")
		{
			engine, db, _, pk := newEngine(t)

			record := unspentRecord(t, db)

			change, err := database.NewRecord(operator, record.Balance-1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to create a record: %v", failed, err)
			}

			tx, err := database.NewExecuteTx(1, "credits", database.FnTransfer, []database.Record{record}, []database.Record{change}, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to create a transaction: %v", failed, err)
			}

			signedTx, err := tx.Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the transaction: %v", failed, err)
			}

			if err := engine.AddUnconfirmedTransaction(database.NewBlockTx(signedTx)); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a fee below the wire size.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a fee below the wire size.", success)
		}
	}
}

func Test_CoinbaseTarget(t *testing.T) {
	t.Log("Given the need to recompute targets deterministically.")
	{
		t.Logf("\tTest 0:\tWhen retargeting from a known anchor.")
		{
			const anchorTime = 25
			const base = uint64(1 << 29)

			// On schedule keeps the target.
			if got := consensus.CoinbaseTarget(base, 1_000, 1_000+anchorTime, anchorTime); got != base {
				t.Fatalf("\t%s\tTest 0:\tShould keep the target on schedule, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the target on schedule.", success)

			// One extra full interval doubles the target.
			if got := consensus.CoinbaseTarget(base, 1_000, 1_000+2*anchorTime, anchorTime); got != base<<1 {
				t.Fatalf("\t%s\tTest 0:\tShould double the target when one interval late, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould double the target when one interval late.", success)

			// Inside a single interval halves the target.
			if got := consensus.CoinbaseTarget(base, 1_000, 1_000+anchorTime-1, anchorTime); got != base>>1 {
				t.Fatalf("\t%s\tTest 0:\tShould halve the target when early, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould halve the target when early.", success)

			// The target never drops below the floor.
			if got := consensus.CoinbaseTarget(consensus.MinCoinbaseTarget, 1_000, 1_001, anchorTime); got != consensus.MinCoinbaseTarget {
				t.Fatalf("\t%s\tTest 0:\tShould clamp the target at the floor, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould clamp the target at the floor.", success)

			// Same inputs always produce the same output.
			a := consensus.CoinbaseTarget(base, 1_000, 1_100, anchorTime)
			b := consensus.CoinbaseTarget(base, 1_000, 1_100, anchorTime)
			if a != b {
				t.Fatalf("\t%s\tTest 0:\tShould recompute the same target twice.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould recompute the same target twice.", success)
		}
	}
}

// =============================================================================

func newEngine(t *testing.T) (*consensus.Engine, *database.Database, *mempool.Mempool, *ecdsa.PrivateKey) {
	gen := genesis.Genesis{
		Date:           time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        1,
		TransPerBlock:  10,
		RoundInterval:  15,
		AnchorTime:     25,
		BlocksPerEpoch: 256,
		CoinbaseTarget: 1 << 29,
		Balances: map[string]uint64{
			operator: 1_000_000,
		},
	}

	serializer, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create storage: %v", failed, err)
	}

	db, err := database.New(gen, serializer, func(v string, args ...any) {})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	mp, err := mempool.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a mempool: %v", failed, err)
	}

	engine, err := consensus.New(consensus.Config{
		Genesis: gen,
		DB:      db,
		Mempool: mp,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct an engine: %v", failed, err)
	}

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the private key: %v", failed, err)
	}

	genesisBlock, err := engine.GenesisBlock(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build the genesis block: %v", failed, err)
	}
	if err := db.AddNextBlock(genesisBlock); err != nil {
		t.Fatalf("\t%s\tShould be able to commit the genesis block: %v", failed, err)
	}

	return engine, db, mp, pk
}

// unspentRecord returns one of the operator's unspent records.
func unspentRecord(t *testing.T, db *database.Database) database.Record {
	records := db.FindRecords(operator, database.RecordsUnspent)
	if len(records) == 0 {
		t.Fatalf("\t%s\tShould have an unspent operator record.", failed)
	}

	return records[0]
}

// transferOf builds a signed self transfer spending the specified record.
func transferOf(t *testing.T, pk *ecdsa.PrivateKey, record database.Record) database.BlockTx {
	change, err := database.NewRecord(operator, record.Balance-minFee)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create a record: %v", failed, err)
	}

	tx, err := database.NewExecuteTx(1, "credits", database.FnTransfer, []database.Record{record}, []database.Record{change}, minFee)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create a transaction: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return database.NewBlockTx(signedTx)
}

// newTransferTx builds a signed self transfer spending the operator's
// unspent record at the specified index.
func newTransferTx(t *testing.T, db *database.Database, pk *ecdsa.PrivateKey, index int) database.BlockTx {
	records := db.FindRecords(operator, database.RecordsUnspent)
	if index >= len(records) {
		t.Fatalf("\t%s\tShould have an unspent operator record at index %d.", failed, index)
	}

	return transferOf(t, pk, records[index])
}
