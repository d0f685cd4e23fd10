package database

// Serializer interface represents the behavior required to be implemented by
// any package providing support for storing and reading the chain.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(height uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}
