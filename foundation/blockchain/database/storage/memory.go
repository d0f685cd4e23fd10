package storage

import (
	"errors"
	"sync"

	"github.com/solochain/solochain/foundation/blockchain/database"
)

// Memory represents the serialization implementation for keeping blocks in
// memory. This implements the database.Serializer interface and exists to
// support testing.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.BlockData
}

// NewMemory constructs an in-memory serializer.
func NewMemory() (*Memory, error) {
	return &Memory{}, nil
}

// Close in this implementation has nothing to do.
func (m *Memory) Close() error {
	return nil
}

// Write appends the specified block to the in-memory chain.
func (m *Memory) Write(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if blockData.Header.Height != uint64(len(m.blocks)) {
		return errors.New("block height is not the next height")
	}

	m.blocks = append(m.blocks, blockData)
	return nil
}

// GetBlock returns the block at the specified height.
func (m *Memory) GetBlock(height uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if height >= uint64(len(m.blocks)) {
		return database.BlockData{}, errors.New("block not found")
	}

	return m.blocks[height], nil
}

// ForEach returns an iterator to walk through all the blocks starting with
// the first block of the chain.
func (m *Memory) ForEach() database.Iterator {
	return &MemoryIterator{memory: m}
}

// Reset clears out the in-memory chain.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}

// =============================================================================

// MemoryIterator represents the iteration implementation for walking through
// blocks held in memory. This implements the database.Iterator interface.
type MemoryIterator struct {
	memory *Memory // Access to the memory storage API.
	next   uint64  // Height of the next block to read.
	eoc    bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from memory.
func (mi *MemoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	blockData, err := mi.memory.GetBlock(mi.next)
	if err != nil {
		mi.eoc = true
	}
	mi.next++

	return blockData, err
}

// Done returns the end of chain value.
func (mi *MemoryIterator) Done() bool {
	return mi.eoc
}
