package store

// Store is a small key-value interface behind which the ledger, the proposal
// archive, and the feedback-event archive keep their records. Backends can be
// a plain directory of files or a Badger database without the callers
// noticing.
type Store interface {
	// Put writes a value under a key, overwriting any previous value. The
	// write is atomic: readers see either the old value or the new one.
	Put(key string, value []byte) error
	// Get returns the value stored under a key, or a common.StoreErr with
	// code KeyNotFound.
	Get(key string) ([]byte, error)
	// List returns the keys that start with prefix, in lexical order.
	List(prefix string) ([]string, error)
	// Close closes the underlying database.
	Close() error
}
