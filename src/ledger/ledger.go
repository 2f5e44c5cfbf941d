package ledger

import (
	"sync"

	"github.com/sirupsen/logrus"
	cm "github.com/subki/federation/src/common"
	"github.com/subki/federation/src/store"
)

const blockPrefix = "block."

// Ledger is the append-only collection of committed blocks. Blocks are stored
// one record per block, keyed by their deterministic ID, through a store.Store
// so the backend can be a directory of files or a Badger database.
//
// The ledger write path is a shared resource; all access serializes on the
// internal mutex.
type Ledger struct {
	sync.Mutex

	store      store.Store
	acceptedBy map[string]int // [node ID] => committed blocks originating from that node
	count      int
	logger     *logrus.Entry
}

// NewLedger wraps a store and rebuilds the per-node accepted counters from
// the blocks already present in it.
func NewLedger(s store.Store, logger *logrus.Entry) (*Ledger, error) {
	l := &Ledger{
		store:      s,
		acceptedBy: make(map[string]int),
		logger:     logger.WithField("component", "ledger"),
	}

	keys, err := s.List(blockPrefix)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		buf, err := s.Get(key)
		if err != nil {
			return nil, err
		}

		block := new(Block)
		if err := block.Unmarshal(buf); err != nil {
			return nil, err
		}

		l.acceptedBy[block.Meta.ProvenanceAux.NodeID]++
		l.count++
	}

	return l, nil
}

// Commit persists a signed block. Committing the same block ID twice is
// idempotent; the block is not re-counted.
func (l *Ledger) Commit(block *Block) error {
	l.Lock()
	defer l.Unlock()

	existed := true
	if _, err := l.store.Get(blockPrefix + block.ID); cm.IsStore(err, cm.KeyNotFound) {
		existed = false
	}

	buf, err := block.Marshal()
	if err != nil {
		return err
	}

	if err := l.store.Put(blockPrefix+block.ID, buf); err != nil {
		return err
	}

	if !existed {
		l.acceptedBy[block.Meta.ProvenanceAux.NodeID]++
		l.count++
	}

	l.logger.WithFields(logrus.Fields{
		"id":    block.ID,
		"topic": block.Topic,
		"node":  block.Meta.ProvenanceAux.NodeID,
	}).Debug("Committed block")

	return nil
}

// Get returns a block by ID.
func (l *Ledger) Get(id string) (*Block, error) {
	l.Lock()
	defer l.Unlock()

	buf, err := l.store.Get(blockPrefix + id)
	if err != nil {
		return nil, err
	}

	block := new(Block)
	if err := block.Unmarshal(buf); err != nil {
		return nil, err
	}

	return block, nil
}

// Count returns the total number of committed blocks.
func (l *Ledger) Count() int {
	l.Lock()
	defer l.Unlock()

	return l.count
}

// AcceptedBy returns the number of committed blocks whose winning proposal
// originated from the given node.
func (l *Ledger) AcceptedBy(nodeID string) int {
	l.Lock()
	defer l.Unlock()

	return l.acceptedBy[nodeID]
}
