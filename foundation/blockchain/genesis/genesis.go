// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date           time.Time         `json:"date"`
	ChainID        uint16            `json:"chain_id"`         // The chain id represents an unique id for this running instance.
	TransPerBlock  uint16            `json:"trans_per_block"`  // The maximum number of transactions that can be in a block.
	RoundInterval  uint16            `json:"round_interval"`   // Seconds the producer targets between two blocks.
	AnchorTime     int64             `json:"anchor_time"`      // Expected seconds between blocks used by the target recompute.
	BlocksPerEpoch uint64            `json:"blocks_per_epoch"` // Number of blocks before the coinbase anchor resets.
	CoinbaseTarget uint64            `json:"coinbase_target"`  // Starting coinbase target for the chain.
	Balances       map[string]uint64 `json:"balances"`         // Starting record balances minted in the genesis block.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file to the specified path. This is used by the
// tooling to bootstrap a new development chain.
func Save(path string, genesis Genesis) error {
	data, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
