package state

import (
	"errors"
	"fmt"

	"github.com/solochain/solochain/foundation/blockchain/database"
)

// SubmitTransaction stages a signed transaction received from a client. The
// call returns once the transaction is accepted into the mempool, it never
// waits for confirmation.
func (s *State) SubmitTransaction(signedTx database.SignedTx) (string, error) {
	tx := database.NewBlockTx(signedTx)

	if err := s.engine.AddUnconfirmedTransaction(tx); err != nil {
		return "", err
	}

	return tx.Tx.ID(), nil
}

// SubmitPour builds, signs and stages a transfer from the operator's funds
// to the specified account.
func (s *State) SubmitPour(toID database.AccountID, amount uint64) (string, error) {
	if amount == 0 {
		return "", errors.New("pour amount must be greater than zero")
	}

	record, err := s.tracker.TakeSufficient(amount + MinFee)
	if err != nil {
		return "", fmt.Errorf("operator funds: %w", err)
	}

	created, err := pourOutputs(toID, amount, record, s.operatorID)
	if err != nil {
		s.tracker.Restore(record)
		return "", err
	}

	txID, err := s.buildAndStage(database.TxTypeExecute, database.FnTransfer, nil, record, created)
	if err != nil {
		s.tracker.Restore(record)
		return "", err
	}

	return txID, nil
}

// SubmitDeploy builds, signs and stages a deployment of the specified
// program, funded from the operator's records.
func (s *State) SubmitDeploy(program database.Program) (string, error) {
	if program.ProgramID == "" || program.Source == "" {
		return "", errors.New("a program id and source are required")
	}

	record, err := s.tracker.TakeSufficient(MinFee)
	if err != nil {
		return "", fmt.Errorf("operator funds: %w", err)
	}

	var created []database.Record
	if change := record.Balance - MinFee; change > 0 {
		changeRecord, err := database.NewRecord(s.operatorID, change)
		if err != nil {
			s.tracker.Restore(record)
			return "", err
		}
		created = append(created, changeRecord)
	}

	txID, err := s.buildAndStage(database.TxTypeDeploy, "", &program, record, created)
	if err != nil {
		s.tracker.Restore(record)
		return "", err
	}

	return txID, nil
}

// =============================================================================

// buildAndStage constructs a transaction spending the specified record,
// signs it with the operator key and stages it.
func (s *State) buildAndStage(txType string, function string, program *database.Program, record database.Record, created []database.Record) (string, error) {
	var tx database.Tx
	var err error

	switch txType {
	case database.TxTypeDeploy:
		tx, err = database.NewDeployTx(s.genesis.ChainID, *program, []database.Record{record}, created, MinFee)
	default:
		tx, err = database.NewExecuteTx(s.genesis.ChainID, "credits", function, []database.Record{record}, created, MinFee)
	}
	if err != nil {
		return "", err
	}

	signedTx, err := tx.Sign(s.operatorKey)
	if err != nil {
		return "", err
	}

	blockTx := database.NewBlockTx(signedTx)
	if err := s.engine.AddUnconfirmedTransaction(blockTx); err != nil {
		return "", err
	}

	return blockTx.Tx.ID(), nil
}

// pourOutputs forms the output records for a pour, merging the change away
// when the record is consumed exactly.
func pourOutputs(toID database.AccountID, amount uint64, record database.Record, operatorID database.AccountID) ([]database.Record, error) {
	payout, err := database.NewRecord(toID, amount)
	if err != nil {
		return nil, err
	}

	created := []database.Record{payout}
	if change := record.Balance - amount - MinFee; change > 0 {
		changeRecord, err := database.NewRecord(operatorID, change)
		if err != nil {
			return nil, err
		}
		created = append(created, changeRecord)
	}

	return created, nil
}
