package state

import (
	"fmt"

	"github.com/solochain/solochain/foundation/blockchain/database"
)

// ProduceNextBlock runs one full production cycle: when nothing is staged a
// transfer back to the operator is synthesized so the chain keeps moving,
// then a candidate block is proposed, validated and committed.
func (s *State) ProduceNextBlock() (database.Block, error) {
	s.evHandler("state: ProduceNextBlock: cycle started")
	defer s.evHandler("state: ProduceNextBlock: cycle completed")

	var taken *database.Record
	if s.mempool.Count() == 0 {
		record, err := s.synthesizeSelfTransfer()
		if err != nil {
			return database.Block{}, err
		}
		taken = &record
	}

	block, err := s.engine.ProposeNextBlock(s.operatorKey)
	if err != nil {
		if taken != nil {
			s.tracker.Restore(*taken)
		}
		return database.Block{}, err
	}

	if err := s.engine.AdvanceToNextBlock(block); err != nil {
		if taken != nil {
			s.tracker.Restore(*taken)
		}
		return database.Block{}, err
	}

	// Fold the new records from the committed block into the tracker.
	s.tracker.Absorb(block.Trans.Values())

	return block, nil
}

// RefreshMempool drops staged transactions the chain has invalidated and
// returns how many were removed.
func (s *State) RefreshMempool() int {
	return s.engine.RefreshMemoryPool()
}

// ClearMempool drops every staged transaction.
func (s *State) ClearMempool() {
	s.engine.ClearMemoryPool()
}

// =============================================================================

// synthesizeSelfTransfer builds and stages a transfer of one operator record
// back to the operator. The fee is merged into a single output so the
// operator's record count is unchanged once the block commits.
func (s *State) synthesizeSelfTransfer() (database.Record, error) {
	record, err := s.tracker.TakeSufficient(MinFee + 1)
	if err != nil {
		return database.Record{}, fmt.Errorf("operator funds: %w", err)
	}

	merged, err := database.NewRecord(s.operatorID, record.Balance-MinFee)
	if err != nil {
		s.tracker.Restore(record)
		return database.Record{}, err
	}

	if _, err := s.buildAndStage(database.TxTypeExecute, database.FnTransfer, nil, record, []database.Record{merged}); err != nil {
		s.tracker.Restore(record)
		return database.Record{}, err
	}

	s.evHandler("state: ProduceNextBlock: mempool empty, staged a self transfer")

	return record, nil
}
