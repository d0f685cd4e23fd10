// Package consensus implements the single-authority engine that stages
// transactions, proposes candidate blocks and validates them before they are
// committed to the chain.
package consensus

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/genesis"
	"github.com/solochain/solochain/foundation/blockchain/mempool"
	"github.com/solochain/solochain/foundation/blockchain/signature"
)

// timestampTolerance is how far into the future a block timestamp may sit
// before the block is rejected.
const timestampTolerance = 90 * time.Second

// EventHandler defines a function that is called when events occur in the
// engine.
type EventHandler func(v string, args ...any)

// Config represents the dependencies required by the engine.
type Config struct {
	Genesis   genesis.Genesis
	DB        *database.Database
	Mempool   *mempool.Mempool
	EvHandler EventHandler
}

// Engine validates transactions and forms them into blocks. There is only
// one producer on this chain so the engine never has to resolve competing
// histories, every block either extends the latest block or is rejected.
type Engine struct {
	submitMu sync.Mutex

	genesis   genesis.Genesis
	db        *database.Database
	mempool   *mempool.Mempool
	evHandler EventHandler
}

// New constructs an engine over the specified chain database and mempool.
func New(cfg Config) (*Engine, error) {
	if cfg.DB == nil || cfg.Mempool == nil {
		return nil, errors.New("database and mempool are required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	e := Engine{
		genesis:   cfg.Genesis,
		db:        cfg.DB,
		mempool:   cfg.Mempool,
		evHandler: ev,
	}

	return &e, nil
}

// =============================================================================

// AddUnconfirmedTransaction validates the specified transaction against the
// chain and the mempool and stages it for inclusion into a future block.
func (e *Engine) AddUnconfirmedTransaction(tx database.BlockTx) error {

	// Submissions serialize here so two spends of the same record can never
	// both pass the conflict scan before either one is staged.
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if err := e.checkTransaction(tx); err != nil {
		return err
	}

	if err := e.conflictsWithLedger(tx); err != nil {
		return err
	}

	if err := e.conflictsWithPool(tx); err != nil {
		return err
	}

	count := e.mempool.Upsert(tx)
	e.evHandler("consensus: AddUnconfirmedTransaction: staged tx[%s] poolsize[%d]", tx.Tx.ID(), count)

	return nil
}

// ProposeNextBlock builds a candidate block from the staged transactions,
// signed by the specified producer key. The candidate is not committed, it
// still has to pass CheckNextBlock.
func (e *Engine) ProposeNextBlock(privateKey *ecdsa.PrivateKey) (database.Block, error) {
	trans := e.mempool.PickBest(int(e.genesis.TransPerBlock))
	if len(trans) == 0 {
		return database.Block{}, ErrEmptyMempool
	}

	latest := e.db.LatestBlock()
	if !e.db.HasBlocks() {
		return database.Block{}, errors.New("chain has no first block")
	}

	// Never reuse the latest block's timestamp, even when proposing within
	// the same second.
	timeStamp := uint64(time.Now().UTC().Unix())
	if timeStamp <= latest.Header.TimeStamp {
		timeStamp = latest.Header.TimeStamp + 1
	}

	nextHeight := latest.Header.Height + 1
	coinbaseTarget, proofTarget, lastTarget, lastTimestamp := e.nextTargets(latest, nextHeight, timeStamp)

	header := database.BlockHeader{
		ChainID:               e.genesis.ChainID,
		Height:                nextHeight,
		Round:                 latest.Header.Round + 1,
		TimeStamp:             timeStamp,
		PrevBlockHash:         latest.Hash(),
		StateRoot:             e.db.StateRoot(),
		ProducerID:            database.PublicKeyToAccountID(privateKey.PublicKey),
		CoinbaseTarget:        coinbaseTarget,
		ProofTarget:           proofTarget,
		LastCoinbaseTarget:    lastTarget,
		LastCoinbaseTimestamp: lastTimestamp,
		CoinbaseAccumulator:   signature.ZeroHash,
	}

	block, err := database.NewBlock(privateKey, header, trans)
	if err != nil {
		return database.Block{}, err
	}

	e.evHandler("consensus: ProposeNextBlock: height[%d] round[%d] txs[%d]", header.Height, header.Round, len(trans))

	return block, nil
}

// CheckNextBlock validates the specified block can extend the chain. The
// rules run in a fixed order and the first violation is reported through a
// ValidationError naming the rule.
func (e *Engine) CheckNextBlock(block database.Block) error {
	latest := e.db.LatestBlock()
	height := block.Header.Height

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: block extends the latest block", height)

	if block.Header.PrevBlockHash != latest.Hash() {
		return NewValidationError(RuleLinkage, fmt.Errorf("previous block hash doesn't match our latest block, got %s, exp %s", block.Header.PrevBlockHash, latest.Hash()))
	}
	if e.db.ContainsBlockHash(block.Hash()) {
		return NewValidationError(RuleLinkage, errors.New("block has already been committed"))
	}

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: height and round advance by one", height)

	if height != latest.Header.Height+1 {
		return NewValidationError(RuleSequencing, fmt.Errorf("this block is not the next height, got %d, exp %d", height, latest.Header.Height+1))
	}
	if block.Header.Round != latest.Header.Round+1 {
		return NewValidationError(RuleSequencing, fmt.Errorf("this block is not the next round, got %d, exp %d", block.Header.Round, latest.Header.Round+1))
	}

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: timestamp moves forward", height)

	if block.Header.TimeStamp <= latest.Header.TimeStamp {
		return NewValidationError(RuleTimestamp, fmt.Errorf("block timestamp must increase, got %d, latest %d", block.Header.TimeStamp, latest.Header.TimeStamp))
	}
	if maxTime := time.Now().UTC().Add(timestampTolerance); block.Header.TimeStamp > uint64(maxTime.Unix()) {
		return NewValidationError(RuleTimestamp, fmt.Errorf("block timestamp is too far in the future, got %d", block.Header.TimeStamp))
	}

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: every identifier is fresh", height)

	if err := e.checkUniqueness(block); err != nil {
		return NewValidationError(RuleUniqueness, err)
	}

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: header integrity", height)

	if block.Header.ChainID != e.genesis.ChainID {
		return NewValidationError(RuleHeader, fmt.Errorf("wrong chain id, got %d, exp %d", block.Header.ChainID, e.genesis.ChainID))
	}
	if block.Header.CoinbaseAccumulator != signature.ZeroHash {
		return NewValidationError(RuleHeader, errors.New("coinbase accumulator must be the zero hash"))
	}
	if block.Coinbase != nil {
		return NewValidationError(RuleHeader, errors.New("block must not carry a coinbase solution"))
	}
	if block.Header.StateRoot != e.db.StateRoot() {
		return NewValidationError(RuleHeader, fmt.Errorf("state root doesn't match the chain, got %s, exp %s", block.Header.StateRoot, e.db.StateRoot()))
	}

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: targets recompute", height)

	coinbaseTarget, proofTarget, lastTarget, lastTimestamp := e.nextTargets(latest, height, block.Header.TimeStamp)
	if block.Header.CoinbaseTarget != coinbaseTarget {
		return NewValidationError(RuleTargets, fmt.Errorf("coinbase target doesn't recompute, got %d, exp %d", block.Header.CoinbaseTarget, coinbaseTarget))
	}
	if block.Header.ProofTarget != proofTarget {
		return NewValidationError(RuleTargets, fmt.Errorf("proof target doesn't recompute, got %d, exp %d", block.Header.ProofTarget, proofTarget))
	}
	if block.Header.LastCoinbaseTarget != lastTarget || block.Header.LastCoinbaseTimestamp != lastTimestamp {
		return NewValidationError(RuleTargets, errors.New("last coinbase anchor doesn't recompute"))
	}

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: producer signature", height)

	if err := signature.VerifySignature(block.V, block.R, block.S); err != nil {
		return NewValidationError(RuleSignature, err)
	}
	producerID, err := block.Producer()
	if err != nil {
		return NewValidationError(RuleSignature, err)
	}
	if producerID != block.Header.ProducerID {
		return NewValidationError(RuleSignature, fmt.Errorf("block was not signed by its producer, got %s, exp %s", producerID, block.Header.ProducerID))
	}

	e.evHandler("consensus: CheckNextBlock: blk[%d]: check: transaction list integrity", height)

	trans := block.Trans.Values()
	if len(trans) == 0 {
		return NewValidationError(RuleTransactions, errors.New("block carries no transactions"))
	}
	if len(trans) > int(e.genesis.TransPerBlock) {
		return NewValidationError(RuleTransactions, fmt.Errorf("too many transactions, got %d, max %d", len(trans), e.genesis.TransPerBlock))
	}
	if block.Header.TransRoot != block.Trans.RootHex() {
		return NewValidationError(RuleTransactions, fmt.Errorf("merkle root does not match transactions, got %s, exp %s", block.Trans.RootHex(), block.Header.TransRoot))
	}

	// Each transaction can be evaluated on its own so the checks run in
	// parallel.
	g := new(errgroup.Group)
	for _, tx := range trans {
		tx := tx
		g.Go(func() error {
			return e.checkTransaction(tx)
		})
	}
	if err := g.Wait(); err != nil {
		return NewValidationError(RuleTransactions, err)
	}

	return nil
}

// AdvanceToNextBlock commits the specified block to the chain after a final
// validation. Any failure clears the whole mempool since a bad transaction
// would otherwise poison every following production cycle.
func (e *Engine) AdvanceToNextBlock(block database.Block) error {
	if err := e.CheckNextBlock(block); err != nil {
		e.evHandler("consensus: AdvanceToNextBlock: check failed, clearing mempool: %s", err)
		e.mempool.Truncate()
		return err
	}

	if err := e.db.AddNextBlock(block); err != nil {
		e.evHandler("consensus: AdvanceToNextBlock: commit failed, clearing mempool: %s", err)
		e.mempool.Truncate()
		return err
	}

	for _, tx := range block.Trans.Values() {
		e.mempool.Delete(tx)
	}

	if removed := e.RefreshMemoryPool(); removed > 0 {
		e.evHandler("consensus: AdvanceToNextBlock: removed %d transactions the new block invalidated", removed)
	}

	e.evHandler("consensus: AdvanceToNextBlock: committed height[%d] hash[%s]", block.Header.Height, block.Hash())

	return nil
}

// GenesisBlock builds the first block of the chain, carrying one minting
// transaction that creates the starting records from the genesis balances.
func (e *Engine) GenesisBlock(privateKey *ecdsa.PrivateKey) (database.Block, error) {
	mintTx, err := database.NewMintTx(e.genesis.ChainID, e.genesis.Balances)
	if err != nil {
		return database.Block{}, err
	}

	signedTx, err := mintTx.Sign(privateKey)
	if err != nil {
		return database.Block{}, err
	}

	timeStamp := uint64(e.genesis.Date.UTC().Unix())
	if e.genesis.Date.IsZero() {
		timeStamp = uint64(time.Now().UTC().Unix())
	}

	coinbaseTarget := clampTarget(e.genesis.CoinbaseTarget)

	header := database.BlockHeader{
		ChainID:               e.genesis.ChainID,
		Height:                0,
		Round:                 0,
		TimeStamp:             timeStamp,
		PrevBlockHash:         signature.ZeroHash,
		StateRoot:             signature.ZeroHash,
		ProducerID:            database.PublicKeyToAccountID(privateKey.PublicKey),
		CoinbaseTarget:        coinbaseTarget,
		ProofTarget:           ProofTarget(coinbaseTarget),
		LastCoinbaseTarget:    coinbaseTarget,
		LastCoinbaseTimestamp: timeStamp,
		CoinbaseAccumulator:   signature.ZeroHash,
	}

	return database.NewBlock(privateKey, header, []database.BlockTx{database.NewBlockTx(signedTx)})
}

// RefreshMemoryPool drops every staged transaction that conflicts with the
// chain as it stands now and returns how many were removed.
func (e *Engine) RefreshMemoryPool() int {
	return e.mempool.RemoveInvalid(func(tx database.BlockTx) error {
		return e.conflictsWithLedger(tx)
	})
}

// ClearMemoryPool drops every staged transaction.
func (e *Engine) ClearMemoryPool() {
	e.mempool.Truncate()
}

// =============================================================================

// nextTargets recomputes the target fields for a block at the specified
// height and timestamp extending the specified latest block. The anchor
// resets on epoch boundaries.
func (e *Engine) nextTargets(latest database.Block, nextHeight uint64, nextTimestamp uint64) (coinbaseTarget, proofTarget, lastTarget, lastTimestamp uint64) {
	coinbaseTarget = CoinbaseTarget(latest.Header.LastCoinbaseTarget, latest.Header.LastCoinbaseTimestamp, nextTimestamp, e.genesis.AnchorTime)

	lastTarget = latest.Header.LastCoinbaseTarget
	lastTimestamp = latest.Header.LastCoinbaseTimestamp
	if e.genesis.BlocksPerEpoch > 0 && nextHeight%e.genesis.BlocksPerEpoch == 0 {
		lastTarget = coinbaseTarget
		lastTimestamp = nextTimestamp
	}

	return coinbaseTarget, ProofTarget(coinbaseTarget), lastTarget, lastTimestamp
}

// checkTransaction applies the per-transaction rules that hold no matter
// what block the transaction lands in.
func (e *Engine) checkTransaction(tx database.BlockTx) error {
	if tx.Function == database.FnMint {
		return errors.New("minting transactions are only allowed in the first block")
	}

	if err := tx.Validate(e.genesis.ChainID); err != nil {
		return err
	}

	if len(tx.Inputs) == 0 {
		return errors.New("transaction must consume at least one record")
	}

	if tx.Fee >= 0 {
		size, err := tx.Size()
		if err != nil {
			return fmt.Errorf("unable to size the transaction: %w", err)
		}
		if size > tx.Fee {
			return fmt.Errorf("declared fee %d does not cover the transaction size %d", tx.Fee, size)
		}
	}

	return nil
}

// conflictsWithLedger checks every identifier the transaction carries
// against what the chain has already confirmed.
func (e *Engine) conflictsWithLedger(tx database.BlockTx) error {
	if e.db.ContainsTransactionID(tx.Tx.ID()) {
		return fmt.Errorf("%w: transaction id already confirmed", ErrDuplicate)
	}
	if e.db.ContainsTPK(tx.TPK) {
		return fmt.Errorf("%w: transition key already confirmed", ErrDuplicate)
	}
	if e.db.ContainsTCM(tx.TCM) {
		return fmt.Errorf("%w: transition commitment already confirmed", ErrDuplicate)
	}

	for _, in := range tx.Inputs {
		if e.db.ContainsSerialNumber(in.SerialNumber) {
			return fmt.Errorf("%w: record already spent", ErrDuplicate)
		}
		if e.db.ContainsInputID(in.InputID) {
			return fmt.Errorf("%w: input id already confirmed", ErrDuplicate)
		}
		if e.db.ContainsTag(in.Tag) {
			return fmt.Errorf("%w: input tag already confirmed", ErrDuplicate)
		}
	}

	for _, out := range tx.Outputs {
		if e.db.ContainsCommitment(out.Commitment) {
			return fmt.Errorf("%w: record commitment already exists", ErrDuplicate)
		}
		if e.db.ContainsNonce(out.Nonce) {
			return fmt.Errorf("%w: record nonce already exists", ErrDuplicate)
		}
		if e.db.ContainsOutputID(out.OutputID) {
			return fmt.Errorf("%w: output id already exists", ErrDuplicate)
		}
	}

	if tx.Type == database.TxTypeDeploy && e.db.ContainsProgramID(tx.ProgramID) {
		return fmt.Errorf("%w: program %q already deployed", ErrDuplicate, tx.ProgramID)
	}

	return nil
}

// conflictsWithPool checks the transaction against everything already
// staged, so two spends of the same record never sit in the pool together.
func (e *Engine) conflictsWithPool(tx database.BlockTx) error {
	for _, staged := range e.mempool.Copy() {
		if err := conflict(tx, staged); err != nil {
			return err
		}
	}

	return nil
}

// checkUniqueness verifies no identifier in the block collides with the
// chain or with another transaction in the same block.
func (e *Engine) checkUniqueness(block database.Block) error {
	trans := block.Trans.Values()

	for i, tx := range trans {
		if err := e.conflictsWithLedger(tx); err != nil {
			return err
		}

		for _, other := range trans[i+1:] {
			if err := conflict(tx, other); err != nil {
				return err
			}
		}
	}

	return nil
}

// conflict reports whether two transactions share any identifier.
func conflict(tx database.BlockTx, other database.BlockTx) error {
	if tx.Tx.ID() == other.Tx.ID() {
		return fmt.Errorf("%w: transaction already staged", ErrDuplicate)
	}
	if tx.TPK == other.TPK || tx.TCM == other.TCM {
		return fmt.Errorf("%w: transition identifiers collide", ErrDuplicate)
	}

	serials := make(map[string]struct{}, len(other.Inputs))
	for _, in := range other.Inputs {
		serials[in.SerialNumber] = struct{}{}
	}
	for _, in := range tx.Inputs {
		if _, exists := serials[in.SerialNumber]; exists {
			return fmt.Errorf("%w: record spent by another transaction", ErrDuplicate)
		}
	}

	commitments := make(map[string]struct{}, len(other.Outputs))
	nonces := make(map[string]struct{}, len(other.Outputs))
	for _, out := range other.Outputs {
		commitments[out.Commitment] = struct{}{}
		nonces[out.Nonce] = struct{}{}
	}
	for _, out := range tx.Outputs {
		if _, exists := commitments[out.Commitment]; exists {
			return fmt.Errorf("%w: record commitment created by another transaction", ErrDuplicate)
		}
		if _, exists := nonces[out.Nonce]; exists {
			return fmt.Errorf("%w: record nonce used by another transaction", ErrDuplicate)
		}
	}

	if tx.Type == database.TxTypeDeploy && other.Type == database.TxTypeDeploy && tx.ProgramID == other.ProgramID {
		return fmt.Errorf("%w: program %q deployed by another transaction", ErrDuplicate, tx.ProgramID)
	}

	return nil
}
