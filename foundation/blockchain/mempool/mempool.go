// Package mempool maintains the pool of unconfirmed transactions waiting to
// be included into a block.
package mempool

import (
	"sort"
	"sync"

	"github.com/solochain/solochain/foundation/blockchain/database"
)

// Mempool represents a cache of unconfirmed transactions keyed by their
// transaction id.
type Mempool struct {
	mu   sync.RWMutex
	pool map[string]database.BlockTx
}

// New constructs a new mempool.
func New() (*Mempool, error) {
	mp := Mempool{
		pool: make(map[string]database.BlockTx),
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether a transaction with the specified id is staged.
func (mp *Mempool) Contains(txID string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[txID]
	return exists
}

// Upsert adds or replaces the specified transaction in the pool. Staging the
// same transaction twice leaves a single copy behind.
func (mp *Mempool) Upsert(tx database.BlockTx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[tx.Tx.ID()] = tx

	return len(mp.pool)
}

// Delete removes the specified transaction from the pool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.Tx.ID())
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.BlockTx)
}

// PickBest returns up to howMany staged transactions ordered by transaction
// id so repeated calls over the same pool produce the same candidate list.
// Pass -1 for the whole pool.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {
	mp.mu.RLock()
	txs := make([]database.BlockTx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	mp.mu.RUnlock()

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Tx.ID() < txs[j].Tx.ID()
	})

	if howMany == -1 || howMany > len(txs) {
		howMany = len(txs)
	}

	return txs[:howMany]
}

// Copy returns every staged transaction in id order.
func (mp *Mempool) Copy() []database.BlockTx {
	return mp.PickBest(-1)
}

// RemoveInvalid keeps only the transactions the specified validate function
// accepts and returns how many were removed. This is used after a block is
// committed to drop transactions the new block made unconfirmable.
func (mp *Mempool) RemoveInvalid(validate func(tx database.BlockTx) error) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for txID, tx := range mp.pool {
		if err := validate(tx); err != nil {
			delete(mp.pool, txID)
			removed++
		}
	}

	return removed
}
