package consensus

import (
	"github.com/subki/federation/src/audit"
	"github.com/subki/federation/src/nodes"
	"github.com/subki/federation/src/proposal"
	"github.com/subki/federation/src/trust"
)

const (
	// DefaultMinConfidence is the threshold an effective confidence must reach
	// for a proposal to be considered by the merger.
	DefaultMinConfidence = 0.7
)

// Outcome is the per-proposal result of a Filter pass.
type Outcome struct {
	Proposal  *proposal.Proposal
	Reason    RejectReason
	Effective float64
}

// EffectiveConfidence combines a proposal's self-declared confidence with its
// node's trust score from the snapshot. Unseen nodes get the default score.
func EffectiveConfidence(p *proposal.Proposal, snapshot map[string]float64) float64 {
	score, ok := snapshot[p.NodeID]
	if !ok {
		score = trust.DefaultScore
	}
	return p.Confidence * score
}

// Filter screens signature-verified proposals against the active set and the
// confidence threshold. Survivors come back in input order; inputs are never
// mutated. Proposals from inactive nodes produce a dropped_inactive audit
// record; below-threshold proposals are dropped silently, their aggregate
// count is enough.
func Filter(
	props []*proposal.Proposal,
	activeSet *nodes.ActiveSet,
	snapshot map[string]float64,
	minConfidence float64,
	auditLog *audit.Log,
) ([]*proposal.Proposal, []Outcome) {

	survivors := []*proposal.Proposal{}
	outcomes := make([]Outcome, 0, len(props))

	for _, p := range props {
		effective := EffectiveConfidence(p, snapshot)

		if activeSet.Enabled() && !activeSet.Contains(p.NodeID) {
			outcomes = append(outcomes, Outcome{Proposal: p, Reason: RejectInactive, Effective: effective})

			auditLog.Record(audit.TypeDroppedInactive, p.NodeID, map[string]interface{}{
				"topic": p.TopicKey(),
				"title": p.Title,
			})

			continue
		}

		if effective < minConfidence {
			outcomes = append(outcomes, Outcome{Proposal: p, Reason: RejectLowConfidence, Effective: effective})
			continue
		}

		survivors = append(survivors, p)
		outcomes = append(outcomes, Outcome{Proposal: p, Reason: RejectNone, Effective: effective})
	}

	return survivors, outcomes
}
