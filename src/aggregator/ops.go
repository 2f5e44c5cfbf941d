package aggregator

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/subki/federation/src/audit"
	"github.com/subki/federation/src/consensus"
	"github.com/subki/federation/src/feedback"
	"github.com/subki/federation/src/proposal"
)

// SubmitResult is what a node gets back for a proposal batch. Partial success
// is the normal case; the counts say exactly what happened to the batch.
type SubmitResult struct {
	Accepted        int                    `json:"accepted_count"`
	DroppedInactive int                    `json:"dropped_inactive_count"`
	Merge           *consensus.MergeResult `json:"merge_result"`
}

// FeedbackResult acknowledges one feedback event.
type FeedbackResult struct {
	Accepted bool   `json:"accepted"`
	EventID  string `json:"event_id"`
}

// NodeSummary is the per-node view exposed by the summary query. The
// RejectedBlocks figure is the documented approximation
// max(0, proposals seen - accepted blocks); it lumps threshold filtering,
// lost ties and duplicates into one bucket.
type NodeSummary struct {
	NodeID         string  `json:"node_id"`
	Trust          float64 `json:"trust"`
	AcceptedBlocks int     `json:"accepted_blocks"`
	RejectedBlocks int     `json:"rejected_blocks"`
	Successes      int     `json:"successes"`
	Active         bool    `json:"active"`
}

// SubmitProposals runs a batch end-to-end: signature gate, per-node archive,
// trust-weighted filter, consensus merge. One bad proposal never blocks the
// rest of the batch.
func (a *Aggregator) SubmitProposals(batch []*proposal.Proposal) *SubmitResult {
	verified := []*proposal.Proposal{}

	for _, p := range batch {
		if !a.verifyProposal(p) {
			a.Audit.Record(audit.TypeInvalidSignature, p.NodeID, map[string]interface{}{
				"topic": p.TopicKey(),
				"title": p.Title,
			})
			continue
		}

		if err := a.Archive.Put(p); err != nil {
			// Archiving is for audit; its failure does not reject the
			// proposal.
			a.logger.WithError(err).WithField("node_id", p.NodeID).Error("Archiving proposal")
		}

		verified = append(verified, p)
	}

	// One trust snapshot for the whole batch: filtering and merging rank
	// every proposal against the same scores.
	snapshot := a.Trust.Snapshot()

	survivors, outcomes := consensus.Filter(
		verified,
		a.ActiveSet,
		snapshot,
		a.Config.MinConfidence,
		a.Audit,
	)

	droppedInactive := 0
	for _, outcome := range outcomes {
		if outcome.Reason == consensus.RejectInactive {
			droppedInactive++
		}
	}

	mergeResult := a.Merger.Merge(survivors, snapshot)

	a.logger.WithFields(logrus.Fields{
		"batch":            len(batch),
		"accepted":         len(verified),
		"dropped_inactive": droppedInactive,
		"written":          mergeResult.Written,
		"skipped":          mergeResult.Skipped,
	}).Debug("Processed proposal batch")

	return &SubmitResult{
		Accepted:        len(verified),
		DroppedInactive: droppedInactive,
		Merge:           mergeResult,
	}
}

// verifyProposal checks the proposal signature. When the submitting node is
// registered, the proposal must be signed with the node's registered key; a
// valid signature under some other key is still a rejection, otherwise anyone
// could speak in a node's name. Unregistered nodes are checked against the
// embedded key only (registration is owned by the bootstrap layer).
func (a *Aggregator) verifyProposal(p *proposal.Proposal) bool {
	if node, err := a.Registry.Get(p.NodeID); err == nil {
		if node.PubKeyHex != p.PubKey {
			return false
		}
	}

	return p.Verify()
}

// UpdateTrust applies external trust feedback: exactly one of trustVal and
// delta must be non-nil. It returns the full updated trust map.
func (a *Aggregator) UpdateTrust(nodeID string, trustVal, delta *float64) (map[string]float64, error) {
	if (trustVal == nil) == (delta == nil) {
		return nil, fmt.Errorf("exactly one of trust and delta must be provided")
	}

	var err error
	if trustVal != nil {
		_, err = a.Trust.SetAbsolute(nodeID, *trustVal)
	} else {
		_, err = a.Trust.ApplyDelta(nodeID, *delta)
	}
	if err != nil {
		return nil, err
	}

	return a.Trust.Snapshot(), nil
}

// TrustMap returns the full node => trust score map.
func (a *Aggregator) TrustMap() map[string]float64 {
	return a.Trust.Snapshot()
}

// Summary builds the per-node summary over all registered nodes.
func (a *Aggregator) Summary() []NodeSummary {
	snapshot := a.Trust.Snapshot()

	res := []NodeSummary{}
	for _, node := range a.Registry.List() {
		accepted := a.Ledger.AcceptedBy(node.ID)
		seen := a.Archive.SeenBy(node.ID)

		rejected := seen - accepted
		if rejected < 0 {
			rejected = 0
		}

		score, ok := snapshot[node.ID]
		if !ok {
			score = a.Trust.Get(node.ID)
		}

		res = append(res, NodeSummary{
			NodeID:         node.ID,
			Trust:          score,
			AcceptedBlocks: accepted,
			RejectedBlocks: rejected,
			Successes:      a.successCount(node.ID),
			Active:         a.ActiveSet.Contains(node.ID),
		})
	}

	return res
}

// SubmitFeedback validates and enqueues one feedback event.
func (a *Aggregator) SubmitFeedback(ev *feedback.Event) (*FeedbackResult, error) {
	if ev.SubKiID == "" {
		return nil, fmt.Errorf("sub_ki_id is required")
	}

	id, err := a.Queue.Enqueue(ev)
	if err != nil {
		return nil, err
	}

	return &FeedbackResult{Accepted: true, EventID: id}, nil
}

// SubmitSharedBlock implements feedback.BlockSink. The shared payload is
// treated as one proposal, with the sharing node substituted as the
// submitter, and pushed through the full pipeline - signature gate included,
// so an unsigned or tampered share can never reach the ledger.
func (a *Aggregator) SubmitSharedBlock(nodeID string, data map[string]interface{}) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}

	p := new(proposal.Proposal)
	if err := json.Unmarshal(buf, p); err != nil {
		return err
	}

	p.NodeID = nodeID

	result := a.SubmitProposals([]*proposal.Proposal{p})

	a.Audit.Record(audit.TypeBlockFeedback, nodeID, map[string]interface{}{
		"accepted": result.Accepted,
		"written":  result.Merge.Written,
	})

	return nil
}

// RecordSuccess implements feedback.SuccessSink.
func (a *Aggregator) RecordSuccess(nodeID string, data map[string]interface{}) {
	a.successesLock.Lock()
	defer a.successesLock.Unlock()

	a.successes[nodeID]++
}

func (a *Aggregator) successCount(nodeID string) int {
	a.successesLock.Lock()
	defer a.successesLock.Unlock()

	return a.successes[nodeID]
}

// GetStats returns aggregate counters in the flat string map format the
// stats endpoint serves.
func (a *Aggregator) GetStats() map[string]string {
	return map[string]string{
		"ledger_blocks":    strconv.Itoa(a.Ledger.Count()),
		"queue_length":     strconv.Itoa(a.Queue.Len()),
		"events_processed": strconv.Itoa(a.Queue.Processed()),
		"known_nodes":      strconv.Itoa(len(a.Registry.List())),
		"moniker":          a.Config.Moniker,
	}
}
