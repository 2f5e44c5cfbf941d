package inmem

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// InmemProxy implements the LearnerProxy interface natively. It keeps every
// submission in memory; applications embedding the aggregator can read them
// back, and tests use it to observe the routing of learning events.
type InmemProxy struct {
	sync.Mutex

	submissions []Submission
	logger      *logrus.Logger
}

// Submission is one recorded learning payload.
type Submission struct {
	NodeID string
	Data   map[string]interface{}
}

// NewInmemProxy instantiates an InmemProxy. If no logger, a new one is
// created.
func NewInmemProxy(logger *logrus.Logger) *InmemProxy {
	if logger == nil {
		logger = logrus.New()
		logger.Level = logrus.DebugLevel
	}

	return &InmemProxy{
		logger: logger,
	}
}

// SubmitLearning implements the LearnerProxy interface.
func (p *InmemProxy) SubmitLearning(nodeID string, data map[string]interface{}) error {
	p.Lock()
	defer p.Unlock()

	p.submissions = append(p.submissions, Submission{NodeID: nodeID, Data: data})

	p.logger.WithField("node_id", nodeID).Debug("Learning data submitted")

	return nil
}

// Submissions returns a copy of everything submitted so far.
func (p *InmemProxy) Submissions() []Submission {
	p.Lock()
	defer p.Unlock()

	res := make([]Submission, len(p.submissions))
	copy(res, p.submissions)

	return res
}
