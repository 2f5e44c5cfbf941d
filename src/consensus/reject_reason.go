package consensus

// RejectReason says why a proposal did not make it into the ledger. Each
// pipeline stage reports an explicit reason instead of silently swallowing the
// proposal, so callers can decide what to log, count or audit. Signature
// failures are rejected and audited before proposals reach this package, so
// they have no reason here.
type RejectReason uint32

const (
	// RejectNone - the proposal was forwarded or committed.
	RejectNone RejectReason = iota
	// RejectInactive - the submitting node is not in the active set.
	RejectInactive
	// RejectLowConfidence - effective confidence below threshold.
	RejectLowConfidence
	// RejectLostTie - another proposal won the topic.
	RejectLostTie
	// RejectDuplicate - identical content already won under another topic.
	RejectDuplicate
	// RejectStoreError - the winning block could not be persisted.
	RejectStoreError
)

// String ...
func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectInactive:
		return "inactive"
	case RejectLowConfidence:
		return "low_confidence"
	case RejectLostTie:
		return "lost_tie"
	case RejectDuplicate:
		return "duplicate"
	case RejectStoreError:
		return "store_error"
	}
	return "unknown"
}
