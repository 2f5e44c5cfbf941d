package consensus

import (
	"crypto/ed25519"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/subki/federation/src/audit"
	"github.com/subki/federation/src/ledger"
	"github.com/subki/federation/src/proposal"
)

// MergeResult reports what a merge invocation did. Partial success is the
// normal case: Written plus Skipped always equals the number of eligible
// proposals handed to Merge. Outcomes carries the per-proposal reason for
// every skip (lost tie, duplicate, store error) next to the winners.
type MergeResult struct {
	Written  int             `json:"written"`
	Skipped  int             `json:"skipped"`
	Blocks   []*ledger.Block `json:"-"`
	Outcomes []Outcome       `json:"-"`
}

// Merger arbitrates between eligible proposals and commits the winners to the
// ledger, re-signed with the aggregator's key.
type Merger struct {
	ledger   *ledger.Ledger
	privKey  ed25519.PrivateKey
	auditLog *audit.Log
	logger   *logrus.Entry
}

// NewMerger ...
func NewMerger(l *ledger.Ledger, privKey ed25519.PrivateKey, auditLog *audit.Log, logger *logrus.Entry) *Merger {
	return &Merger{
		ledger:   l,
		privKey:  privKey,
		auditLog: auditLog,
		logger:   logger.WithField("component", "merger"),
	}
}

// Merge runs the deterministic arbitration over eligible proposals:
//
//  1. Group by topic, falling back to the title when the topic is empty.
//  2. In each group, rank descending by (effective confidence, content
//     length); the first element is the topic's single winner.
//  3. Across topic winners, ranked by the same (effective confidence, content
//     length) order, drop any winner whose content hash was already taken by a
//     stronger one.
//  4. Build, sign and commit a ledger block per surviving winner. A failed
//     commit skips that block only; the batch carries on.
//
// The trust snapshot is fixed for the whole call, so the result depends only
// on the input set, the snapshot, and the documented tie-break rule.
func (m *Merger) Merge(eligible []*proposal.Proposal, snapshot map[string]float64) *MergeResult {
	result := &MergeResult{Blocks: []*ledger.Block{}}

	// Group by topic in first-appearance order.
	order := []string{}
	groups := map[string][]*proposal.Proposal{}
	for _, p := range eligible {
		key := p.TopicKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	winners := []*proposal.Proposal{}

	for _, topic := range order {
		group := groups[topic]

		sort.SliceStable(group, func(i, j int) bool {
			ei := EffectiveConfidence(group[i], snapshot)
			ej := EffectiveConfidence(group[j], snapshot)
			if ei != ej {
				return ei > ej
			}
			return len(group[i].Content) > len(group[j].Content)
		})

		winners = append(winners, group[0])
		result.Skipped += len(group) - 1

		for _, loser := range group[1:] {
			result.Outcomes = append(result.Outcomes, Outcome{
				Proposal:  loser,
				Reason:    RejectLostTie,
				Effective: EffectiveConfidence(loser, snapshot),
			})
		}
	}

	// Rank the topic winners so the dedup pass keeps the strongest claim on a
	// given content, not whichever topic happened to come first in the batch.
	// The stable sort falls back to topic first-appearance order on full ties,
	// keeping the whole merge deterministic.
	sort.SliceStable(winners, func(i, j int) bool {
		ei := EffectiveConfidence(winners[i], snapshot)
		ej := EffectiveConfidence(winners[j], snapshot)
		if ei != ej {
			return ei > ej
		}
		return len(winners[i].Content) > len(winners[j].Content)
	})

	seenContent := map[string]bool{}

	for _, winner := range winners {
		topic := winner.TopicKey()
		effective := EffectiveConfidence(winner, snapshot)

		contentHash := winner.ContentHash()
		if seenContent[contentHash] {
			result.Skipped++
			result.Outcomes = append(result.Outcomes, Outcome{Proposal: winner, Reason: RejectDuplicate, Effective: effective})

			m.logger.WithFields(logrus.Fields{
				"topic":   topic,
				"node_id": winner.NodeID,
			}).Debug("Duplicate content, dropping topic winner")

			continue
		}
		seenContent[contentHash] = true

		block := ledger.NewBlockFromProposal(winner)
		if err := block.Sign(m.privKey); err != nil {
			result.Skipped++
			result.Outcomes = append(result.Outcomes, Outcome{Proposal: winner, Reason: RejectStoreError, Effective: effective})

			m.logger.WithError(err).WithField("topic", topic).Error("Signing block")

			continue
		}

		if err := m.ledger.Commit(block); err != nil {
			result.Skipped++
			result.Outcomes = append(result.Outcomes, Outcome{Proposal: winner, Reason: RejectStoreError, Effective: effective})

			m.logger.WithError(err).WithField("id", block.ID).Error("Committing block")

			m.auditLog.Record(audit.TypeBlockWriteFailure, winner.NodeID, map[string]interface{}{
				"id":    block.ID,
				"topic": topic,
			})

			continue
		}

		result.Written++
		result.Blocks = append(result.Blocks, block)
		result.Outcomes = append(result.Outcomes, Outcome{Proposal: winner, Reason: RejectNone, Effective: effective})

		m.auditLog.Record(audit.TypeBlockCommitted, winner.NodeID, map[string]interface{}{
			"id":    block.ID,
			"topic": topic,
		})
	}

	return result
}
