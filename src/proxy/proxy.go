package proxy

// LearnerProxy is the aggregator's hook into the learning-statistics
// collaborator. Learning feedback events are forwarded through it; what the
// application does with them (training corpora, dashboards, nothing at all)
// is not this core's business.
type LearnerProxy interface {
	// SubmitLearning hands over one node's learning payload.
	SubmitLearning(nodeID string, data map[string]interface{}) error
}
