package proposal

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/subki/federation/src/store"
)

// Archive keeps every signature-valid proposal a node has ever submitted,
// whether or not it won consensus. It backs the per-node proposals-seen
// counter used by summaries, and gives operators an audit trail of raw
// submissions.
type Archive struct {
	store  store.Store
	logger *logrus.Entry
}

// NewArchive ...
func NewArchive(s store.Store, logger *logrus.Entry) *Archive {
	return &Archive{
		store:  s,
		logger: logger.WithField("component", "proposal_archive"),
	}
}

// key builds the storage key for a proposal. The node id segment is
// hex-encoded: node ids are attacker-supplied, and a raw id containing dots
// or path separators could impersonate another node's prefix or name a path.
// Including the content hash makes re-submissions of the same content
// idempotent within a node's archive.
func (a *Archive) key(p *Proposal) string {
	return fmt.Sprintf("proposal.%x.%s", p.NodeID, p.ContentHash())
}

func nodePrefix(nodeID string) string {
	return fmt.Sprintf("proposal.%x.", nodeID)
}

// Put persists the raw proposal under its node's prefix.
func (a *Archive) Put(p *Proposal) error {
	buf, err := p.Marshal()
	if err != nil {
		return err
	}

	return a.store.Put(a.key(p), buf)
}

// SeenBy returns the number of distinct archived proposals from a node.
func (a *Archive) SeenBy(nodeID string) int {
	keys, err := a.store.List(nodePrefix(nodeID))
	if err != nil {
		a.logger.WithError(err).WithField("node_id", nodeID).Error("Listing proposal archive")
		return 0
	}

	return len(keys)
}

// ByNode returns all archived proposals from a node.
func (a *Archive) ByNode(nodeID string) ([]*Proposal, error) {
	keys, err := a.store.List(nodePrefix(nodeID))
	if err != nil {
		return nil, err
	}

	res := make([]*Proposal, 0, len(keys))
	for _, key := range keys {
		buf, err := a.store.Get(key)
		if err != nil {
			return nil, err
		}

		p := new(Proposal)
		if err := p.Unmarshal(buf); err != nil {
			return nil, err
		}

		res = append(res, p)
	}

	return res, nil
}
