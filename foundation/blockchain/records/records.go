// Package records tracks the unspent records the node's operator account
// owns, so production cycles can fund transactions without rescanning the
// chain.
package records

import (
	"fmt"
	"sort"
	"sync"

	"github.com/solochain/solochain/foundation/blockchain/database"
)

// Tracker maintains the operator's view of their own unspent records. The
// chain database stays the source of truth, the tracker is rebuilt from it
// whenever the two disagree.
type Tracker struct {
	mu sync.Mutex

	accountID database.AccountID
	db        *database.Database
	records   map[string]database.Record
	evHandler func(v string, args ...any)
}

// New constructs a tracker for the specified account and loads its unspent
// records from the chain.
func New(accountID database.AccountID, db *database.Database, evHandler func(v string, args ...any)) (*Tracker, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	tr := Tracker{
		accountID: accountID,
		db:        db,
		records:   make(map[string]database.Record),
		evHandler: ev,
	}

	tr.Load()

	return &tr, nil
}

// Load rebuilds the tracker from the chain, dropping whatever it held.
func (tr *Tracker) Load() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.load()
}

// load rebuilds the record set under an already held lock.
func (tr *Tracker) load() {
	tr.records = make(map[string]database.Record)
	for _, record := range tr.db.FindRecords(tr.accountID, database.RecordsUnspent) {

		// A zero balance record can never fund a transaction.
		if record.Balance == 0 {
			continue
		}

		tr.records[record.Commitment] = record
	}

	tr.evHandler("records: load: tracking %d unspent records", len(tr.records))
}

// Count returns the number of records currently tracked.
func (tr *Tracker) Count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return len(tr.records)
}

// Records returns a copy of the tracked records in commitment order.
func (tr *Tracker) Records() []database.Record {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	records := make([]database.Record, 0, len(tr.records))
	for _, record := range tr.records {
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Commitment < records[j].Commitment
	})

	return records
}

// TakeSufficient removes and returns the first record in commitment order
// whose balance covers the specified amount. The caller owns the record
// until it is restored or its spend is absorbed.
func (tr *Tracker) TakeSufficient(amount uint64) (database.Record, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	commitments := make([]string, 0, len(tr.records))
	for commitment := range tr.records {
		commitments = append(commitments, commitment)
	}
	sort.Strings(commitments)

	for _, commitment := range commitments {
		record := tr.records[commitment]
		if record.Balance >= amount {
			delete(tr.records, commitment)
			return record, nil
		}
	}

	return database.Record{}, fmt.Errorf("no tracked record covers %d", amount)
}

// Restore returns a taken record to the tracker. Restoring a record that is
// still tracked or that the chain shows as spent is a no-op.
func (tr *Tracker) Restore(record database.Record) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, exists := tr.records[record.Commitment]; exists {
		return
	}

	serial := database.SerialNumber(record.Commitment, tr.accountID)
	if tr.db.ContainsSerialNumber(serial) {
		return
	}

	tr.records[record.Commitment] = record
}

// Absorb folds the effects of committed transactions into the tracker, new
// operator records are added and records the chain now shows as spent are
// dropped. If the result disagrees with the chain the tracker rebuilds
// itself instead.
func (tr *Tracker) Absorb(trans []database.BlockTx) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for _, tx := range trans {
		for _, out := range tx.Outputs {
			if out.OwnerID != tr.accountID {
				continue
			}

			// A zero balance record can never fund a transaction.
			if out.Balance == 0 {
				continue
			}

			// Only track records the chain actually confirmed.
			if !tr.db.ContainsCommitment(out.Commitment) {
				tr.evHandler("records: absorb: commitment %s missing from chain, rebuilding", out.Commitment)
				tr.load()
				return
			}

			serial := database.SerialNumber(out.Commitment, tr.accountID)
			if tr.db.ContainsSerialNumber(serial) {
				continue
			}

			tr.records[out.Commitment] = out.Record
		}
	}

	// Drop anything a committed transaction spent out from under us.
	for commitment := range tr.records {
		serial := database.SerialNumber(commitment, tr.accountID)
		if tr.db.ContainsSerialNumber(serial) {
			delete(tr.records, commitment)
		}
	}
}
