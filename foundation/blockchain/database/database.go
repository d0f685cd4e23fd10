// Package database handles the lower level support for maintaining the chain
// on disk and maintaining the in-memory indexes of every identifier the chain
// has ever confirmed.
package database

import (
	"fmt"
	"sort"
	"sync"

	"github.com/solochain/solochain/foundation/blockchain/genesis"
	"github.com/solochain/solochain/foundation/blockchain/signature"
)

// RecordFilter constrains which records a search returns.
type RecordFilter int

// Set of record filters.
const (
	RecordsAll RecordFilter = iota
	RecordsUnspent
	RecordsSpent
)

// =============================================================================

// DatabaseIterator provides support for iterating over stored blocks.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages the confirmed chain and the indexes used to answer
// uniqueness and membership questions about transactions and their
// identifiers.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	stateRoot   string
	hasBlocks   bool

	blockHashes map[string]uint64
	txIDs       map[string]struct{}
	serials     map[string]struct{}
	inputIDs    map[string]struct{}
	tags        map[string]struct{}
	commitments map[string]struct{}
	nonces      map[string]struct{}
	outputIDs   map[string]struct{}
	tpks        map[string]struct{}
	tcms        map[string]struct{}
	outputs     map[string]Output
	programs    map[string]Program

	serializer Serializer
	evHandler  func(v string, args ...any)
}

// New constructs a new database over the specified serializer and replays
// any blocks already in storage to rebuild the identifier indexes.
func New(genesis genesis.Genesis, serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:     genesis,
		stateRoot:   signature.ZeroHash,
		blockHashes: make(map[string]uint64),
		txIDs:       make(map[string]struct{}),
		serials:     make(map[string]struct{}),
		inputIDs:    make(map[string]struct{}),
		tags:        make(map[string]struct{}),
		commitments: make(map[string]struct{}),
		nonces:      make(map[string]struct{}),
		outputIDs:   make(map[string]struct{}),
		tpks:        make(map[string]struct{}),
		tcms:        make(map[string]struct{}),
		outputs:     make(map[string]Output),
		programs:    make(map[string]Program),
		serializer:  serializer,
		evHandler:   evHandler,
	}

	// Replay the blocks from storage. Every block was validated before it
	// was written so only linkage is re-checked here.
	iter := serializer.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		if err := block.ValidateLinkage(db.latestBlock); err != nil {
			return nil, err
		}

		db.applyBlock(block)
		db.evHandler("database: replayed block: height[%d] hash[%s]", block.Header.Height, block.Hash())
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() {
	db.serializer.Close()
}

// =============================================================================

// AddNextBlock validates the block extends the current chain, writes it to
// storage and indexes every identifier it carries.
func (db *Database) AddNextBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := block.ValidateLinkage(db.latestBlock); err != nil {
		return err
	}

	if err := db.serializer.Write(NewBlockData(block)); err != nil {
		return err
	}

	db.applyBlock(block)

	return nil
}

// applyBlock updates the indexes and latest block under an already held
// write lock.
func (db *Database) applyBlock(block Block) {
	for _, tx := range block.Trans.Values() {
		db.txIDs[tx.Tx.ID()] = struct{}{}
		db.tpks[tx.TPK] = struct{}{}
		db.tcms[tx.TCM] = struct{}{}

		for _, in := range tx.Inputs {
			db.serials[in.SerialNumber] = struct{}{}
			db.inputIDs[in.InputID] = struct{}{}
			db.tags[in.Tag] = struct{}{}
		}

		for _, out := range tx.Outputs {
			db.commitments[out.Commitment] = struct{}{}
			db.nonces[out.Nonce] = struct{}{}
			db.outputIDs[out.OutputID] = struct{}{}
			db.outputs[out.Commitment] = out
		}

		if tx.Type == TxTypeDeploy && tx.Program != nil {
			db.programs[tx.Program.ProgramID] = *tx.Program
		}
	}

	db.blockHashes[block.Hash()] = block.Header.Height
	db.latestBlock = block
	db.stateRoot = signature.HashBytes(db.stateRoot, block.Hash())
	db.hasBlocks = true
}

// =============================================================================

// LatestBlock returns the current latest block of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// StateRoot returns the state root covering every block up to and including
// the latest block.
func (db *Database) StateRoot() string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.stateRoot
}

// HasBlocks reports whether any block has been committed yet.
func (db *Database) HasBlocks() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.hasBlocks
}

// Genesis returns the genesis information this chain was started with.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// =============================================================================

// ContainsBlockHash reports whether a block with the specified hash has been
// confirmed.
func (db *Database) ContainsBlockHash(hash string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.blockHashes[hash]
	return exists
}

// ContainsBlockHeight reports whether a block at the specified height has
// been confirmed.
func (db *Database) ContainsBlockHeight(height uint64) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.hasBlocks && height <= db.latestBlock.Header.Height
}

// ContainsTransactionID reports whether the specified transaction has been
// confirmed.
func (db *Database) ContainsTransactionID(txID string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.txIDs[txID]
	return exists
}

// ContainsSerialNumber reports whether the specified serial number has been
// revealed by a confirmed transaction.
func (db *Database) ContainsSerialNumber(serial string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.serials[serial]
	return exists
}

// ContainsInputID reports whether the specified input id has been confirmed.
func (db *Database) ContainsInputID(inputID string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.inputIDs[inputID]
	return exists
}

// ContainsTag reports whether the specified tag has been confirmed.
func (db *Database) ContainsTag(tag string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.tags[tag]
	return exists
}

// ContainsCommitment reports whether the specified commitment has been
// created by a confirmed transaction.
func (db *Database) ContainsCommitment(commitment string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.commitments[commitment]
	return exists
}

// ContainsNonce reports whether the specified record nonce has been
// confirmed.
func (db *Database) ContainsNonce(nonce string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.nonces[nonce]
	return exists
}

// ContainsOutputID reports whether the specified output id has been
// confirmed.
func (db *Database) ContainsOutputID(outputID string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.outputIDs[outputID]
	return exists
}

// ContainsTPK reports whether the specified transition public key has been
// confirmed.
func (db *Database) ContainsTPK(tpk string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.tpks[tpk]
	return exists
}

// ContainsTCM reports whether the specified transition commitment has been
// confirmed.
func (db *Database) ContainsTCM(tcm string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.tcms[tcm]
	return exists
}

// ContainsProgramID reports whether a program with the specified id has been
// deployed.
func (db *Database) ContainsProgramID(programID string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.programs[programID]
	return exists
}

// =============================================================================

// GetProgram returns the deployed program with the specified id.
func (db *Database) GetProgram(programID string) (Program, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	program, exists := db.programs[programID]
	if !exists {
		return Program{}, fmt.Errorf("program %q not found", programID)
	}

	return program, nil
}

// GetBlock retrieves the block at the specified height from storage.
func (db *Database) GetBlock(height uint64) (Block, error) {
	blockData, err := db.serializer.GetBlock(height)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// GetBlockByHash retrieves the block with the specified hash from storage.
func (db *Database) GetBlockByHash(hash string) (Block, error) {
	db.mu.RLock()
	height, exists := db.blockHashes[hash]
	db.mu.RUnlock()

	if !exists {
		return Block{}, fmt.Errorf("block %s not found", hash)
	}

	return db.GetBlock(height)
}

// ForEach returns an iterator to walk through all the blocks starting with
// the first block of the chain.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.serializer.ForEach()}
}

// =============================================================================

// FindRecords returns the records owned by the specified account, filtered
// on whether their owner has revealed the matching serial number.
func (db *Database) FindRecords(ownerID AccountID, filter RecordFilter) []Record {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var records []Record
	for _, out := range db.outputs {
		if out.OwnerID != ownerID {
			continue
		}

		_, spent := db.serials[SerialNumber(out.Commitment, ownerID)]
		switch filter {
		case RecordsUnspent:
			if spent {
				continue
			}
		case RecordsSpent:
			if !spent {
				continue
			}
		}

		records = append(records, out.Record)
	}

	// Map iteration is random so give the caller a stable order.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Commitment < records[j].Commitment
	})

	return records
}
