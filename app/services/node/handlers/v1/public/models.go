package public

import (
	"github.com/solochain/solochain/foundation/blockchain/database"
)

// tx represents a transaction in the responses.
type tx struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	ProgramID string             `json:"program_id"`
	Function  string             `json:"function,omitempty"`
	Fee       int64              `json:"fee"`
	TimeStamp uint64             `json:"timestamp"`
	TPK       string             `json:"tpk"`
	TCM       string             `json:"tcm"`
	Inputs    []database.Input   `json:"inputs"`
	Outputs   []database.Output  `json:"outputs"`
	Producer  database.AccountID `json:"producer"`
	Name      string             `json:"producer_name,omitempty"`
	Sig       string             `json:"sig"`
}

// block represents a block in the responses.
type block struct {
	Hash           string             `json:"hash"`
	Height         uint64             `json:"height"`
	Round          uint64             `json:"round"`
	TimeStamp      uint64             `json:"timestamp"`
	PrevBlockHash  string             `json:"prev_block_hash"`
	StateRoot      string             `json:"state_root"`
	TransRoot      string             `json:"trans_root"`
	Producer       database.AccountID `json:"producer"`
	ProducerName   string             `json:"producer_name,omitempty"`
	CoinbaseTarget uint64             `json:"coinbase_target"`
	ProofTarget    uint64             `json:"proof_target"`
	Trans          []tx               `json:"trans"`
}
