// Package state is the core API for the node and aggregates the chain
// database, mempool, consensus engine and record tracker behind one facade.
package state

import (
	"crypto/ecdsa"
	"errors"

	"github.com/solochain/solochain/foundation/blockchain/consensus"
	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/genesis"
	"github.com/solochain/solochain/foundation/blockchain/mempool"
	"github.com/solochain/solochain/foundation/blockchain/records"
)

// MinFee is the fee the node attaches to the transactions it builds on
// behalf of the operator. It is large enough to cover the wire size of any
// transaction this node constructs.
const MinFee = 4096

// EventHandler defines a function that is called when events occur in the
// processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for the block production loop.
type Worker interface {
	Shutdown()
	SignalStartProduction()
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	OperatorKey *ecdsa.PrivateKey
	Genesis     genesis.Genesis
	Storage     database.Serializer
	EvHandler   EventHandler
}

// State manages the blockchain node.
type State struct {
	operatorKey *ecdsa.PrivateKey
	operatorID  database.AccountID
	genesis     genesis.Genesis
	evHandler   EventHandler

	db      *database.Database
	mempool *mempool.Mempool
	engine  *consensus.Engine
	tracker *records.Tracker

	Worker Worker
}

// New constructs the node state, bootstrapping the first block of the chain
// when the storage is empty.
func New(cfg Config) (*State, error) {
	if cfg.OperatorKey == nil {
		return nil, errors.New("an operator key is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	mempool, err := mempool.New()
	if err != nil {
		return nil, err
	}

	engine, err := consensus.New(consensus.Config{
		Genesis:   cfg.Genesis,
		DB:        db,
		Mempool:   mempool,
		EvHandler: consensus.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	// A fresh chain needs its first block before anything can be produced.
	if !db.HasBlocks() {
		genesisBlock, err := engine.GenesisBlock(cfg.OperatorKey)
		if err != nil {
			return nil, err
		}
		if err := db.AddNextBlock(genesisBlock); err != nil {
			return nil, err
		}
		ev("state: bootstrapped the chain: hash[%s]", genesisBlock.Hash())
	}

	tracker, err := records.New(database.PublicKeyToAccountID(cfg.OperatorKey.PublicKey), db, ev)
	if err != nil {
		return nil, err
	}

	state := State{
		operatorKey: cfg.OperatorKey,
		operatorID:  database.PublicKeyToAccountID(cfg.OperatorKey.PublicKey),
		genesis:     cfg.Genesis,
		evHandler:   ev,

		db:      db,
		mempool: mempool,
		engine:  engine,
		tracker: tracker,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start the production loop.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop the production loop.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}
