package state

import (
	"fmt"
	"time"

	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/genesis"
)

// maxBlockRange bounds how many blocks a single range query returns.
const maxBlockRange = 50

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// OperatorID returns the account that produces blocks on this node.
func (s *State) OperatorID() database.AccountID {
	return s.operatorID
}

// RoundInterval returns how long the production loop targets between two
// blocks.
func (s *State) RoundInterval() time.Duration {
	const defaultRoundInterval = 15 * time.Second

	if s.genesis.RoundInterval == 0 {
		return defaultRoundInterval
	}

	return time.Duration(s.genesis.RoundInterval) * time.Second
}

// LatestBlock returns the current latest block of the chain.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// StateRoot returns the state root covering the whole chain.
func (s *State) StateRoot() string {
	return s.db.StateRoot()
}

// GetBlock returns the block at the specified height.
func (s *State) GetBlock(height uint64) (database.Block, error) {
	return s.db.GetBlock(height)
}

// GetBlockByHash returns the block with the specified hash.
func (s *State) GetBlockByHash(hash string) (database.Block, error) {
	return s.db.GetBlockByHash(hash)
}

// GetBlocks returns the blocks from the specified height range, bounded to
// maxBlockRange blocks per call.
func (s *State) GetBlocks(from uint64, to uint64) ([]database.Block, error) {
	if to < from {
		return nil, fmt.Errorf("invalid range, %d is before %d", to, from)
	}
	if to-from+1 > maxBlockRange {
		return nil, fmt.Errorf("range exceeds %d blocks", maxBlockRange)
	}

	latest := s.db.LatestBlock()
	if to > latest.Header.Height {
		to = latest.Header.Height
	}

	blocks := make([]database.Block, 0, to-from+1)
	for height := from; height <= to; height++ {
		block, err := s.db.GetBlock(height)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// GetProgram returns the deployed program with the specified id.
func (s *State) GetProgram(programID string) (database.Program, error) {
	return s.db.GetProgram(programID)
}

// MempoolLength returns the current number of staged transactions.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// Mempool returns a copy of the staged transactions.
func (s *State) Mempool() []database.BlockTx {
	return s.mempool.Copy()
}

// UnspentRecords returns the operator's tracked unspent records.
func (s *State) UnspentRecords() []database.Record {
	return s.tracker.Records()
}

// FindRecords returns the records the specified account owns on the chain.
func (s *State) FindRecords(ownerID database.AccountID, filter database.RecordFilter) []database.Record {
	return s.db.FindRecords(ownerID, filter)
}
