package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/solochain/solochain/foundation/blockchain/merkle"
	"github.com/solochain/solochain/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	ChainID               uint16    `json:"chain_id"`                // Chain id this block belongs to.
	Height                uint64    `json:"height"`                  // Block number in the chain.
	Round                 uint64    `json:"round"`                   // Production round that created this block.
	TimeStamp             uint64    `json:"timestamp"`               // Time the block was produced.
	PrevBlockHash         string    `json:"prev_block_hash"`         // Hash of the previous block in the chain.
	StateRoot             string    `json:"state_root"`              // State root of the chain this block extends.
	TransRoot             string    `json:"trans_root"`              // Merkle tree root hash for the transactions in this block.
	ProducerID            AccountID `json:"producer"`                // Account who produced and signed this block.
	CoinbaseTarget        uint64    `json:"coinbase_target"`         // Coinbase target for this block.
	ProofTarget           uint64    `json:"proof_target"`            // Proof target for this block.
	LastCoinbaseTarget    uint64    `json:"last_coinbase_target"`    // Coinbase target of the last coinbase anchor.
	LastCoinbaseTimestamp uint64    `json:"last_coinbase_timestamp"` // Timestamp of the last coinbase anchor.
	CoinbaseAccumulator   string    `json:"coinbase_accumulator"`    // Accumulator point, always the zero hash on this chain.
}

// CoinbaseSolution represents prover solutions batched into a block. A node
// producing blocks by itself never includes one, but the wire format retains
// the field.
type CoinbaseSolution struct {
	Solutions []string `json:"solutions"`
}

// Block represents a group of transactions batched together with a header
// signed by the producer.
type Block struct {
	Header   BlockHeader
	Trans    *merkle.Tree[BlockTx]
	Coinbase *CoinbaseSolution
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// NewBlock constructs a block from the specified header and set of
// transactions, setting the transaction root and signing the block hash with
// the producer's private key.
func NewBlock(privateKey *ecdsa.PrivateKey, header BlockHeader, trans []BlockTx) (Block, error) {
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}
	header.TransRoot = tree.RootHex()

	b := Block{
		Header: header,
		Trans:  tree,
	}

	v, r, s, err := signature.Sign(b.Hash(), privateKey)
	if err != nil {
		return Block{}, err
	}
	b.V, b.R, b.S = v, r, s

	return b, nil
}

// HeaderRoot returns the hash of the block header.
func (b Block) HeaderRoot() string {
	return signature.Hash(b.Header)
}

// Hash returns the unique hash for the block, derived from the previous
// block hash and the header root.
func (b Block) Hash() string {
	return signature.HashBytes(b.Header.PrevBlockHash, b.HeaderRoot())
}

// Producer extracts the account id that signed the block.
func (b Block) Producer() (AccountID, error) {
	address, err := signature.FromAddress(b.Hash(), b.V, b.R, b.S)
	return AccountID(address), err
}

// ValidateLinkage checks the block extends the specified latest block with
// the next height and round and a later timestamp. The empty latest block
// stands for an empty chain and admits only the first block.
func (b Block) ValidateLinkage(latestBlock Block) error {
	if latestBlock.Header.Height == 0 && latestBlock.Header.PrevBlockHash == "" {
		if b.Header.Height != 0 {
			return fmt.Errorf("chain is empty, first block must have height 0, got %d", b.Header.Height)
		}
		if b.Header.PrevBlockHash != signature.ZeroHash {
			return errors.New("first block must extend the zero hash")
		}
		return nil
	}

	if b.Header.PrevBlockHash != latestBlock.Hash() {
		return fmt.Errorf("previous block hash doesn't match our latest block, got %s, exp %s", b.Header.PrevBlockHash, latestBlock.Hash())
	}

	if b.Header.Height != latestBlock.Header.Height+1 {
		return fmt.Errorf("this block is not the next height, got %d, exp %d", b.Header.Height, latestBlock.Header.Height+1)
	}

	if b.Header.Round != latestBlock.Header.Round+1 {
		return fmt.Errorf("this block is not the next round, got %d, exp %d", b.Header.Round, latestBlock.Header.Round+1)
	}

	if b.Header.TimeStamp <= latestBlock.Header.TimeStamp {
		return fmt.Errorf("block timestamp must increase, got %d, latest %d", b.Header.TimeStamp, latestBlock.Header.TimeStamp)
	}

	return nil
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash     string            `json:"hash"`
	Header   BlockHeader       `json:"block"`
	Trans    []BlockTx         `json:"trans"`
	Coinbase *CoinbaseSolution `json:"coinbase,omitempty"`
	V        *big.Int          `json:"v"`
	R        *big.Int          `json:"r"`
	S        *big.Int          `json:"s"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:     block.Hash(),
		Header:   block.Header,
		Trans:    block.Trans.Values(),
		Coinbase: block.Coinbase,
		V:        block.V,
		R:        block.R,
		S:        block.S,
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Header:   blockData.Header,
		Trans:    tree,
		Coinbase: blockData.Coinbase,
		V:        blockData.V,
		R:        blockData.R,
		S:        blockData.S,
	}

	return block, nil
}
