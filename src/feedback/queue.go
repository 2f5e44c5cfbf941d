package feedback

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/subki/federation/src/crypto"
	"github.com/subki/federation/src/proxy"
	"github.com/subki/federation/src/store"
)

// BlockSink receives shared blocks. The aggregator implements it by pushing
// the payload through the full proposal pipeline, signature gate included.
type BlockSink interface {
	SubmitSharedBlock(nodeID string, data map[string]interface{}) error
}

// SuccessSink receives success reports. Counting per node is the baseline;
// richer handling is an extension point.
type SuccessSink interface {
	RecordSuccess(nodeID string, data map[string]interface{})
}

// Queue accepts asynchronous feedback events from nodes without blocking the
// caller beyond the durability write. Every event is persisted to the event
// archive before it is processed, so a crash between enqueue and drain loses
// nothing. Events with priority >= HighPriority are processed inline with
// their enqueue; the rest wait for the next Process call, which drains in
// descending priority order.
type Queue struct {
	l sync.Mutex

	events    []*Event
	seq       int
	processed int

	archive      store.Store
	errorLogPath string
	learner      proxy.LearnerProxy
	blocks       BlockSink
	successes    SuccessSink
	logger       *logrus.Entry
}

// NewQueue ...
func NewQueue(
	archive store.Store,
	errorLogPath string,
	learner proxy.LearnerProxy,
	blocks BlockSink,
	successes SuccessSink,
	logger *logrus.Entry,
) *Queue {
	return &Queue{
		archive:      archive,
		errorLogPath: errorLogPath,
		learner:      learner,
		blocks:       blocks,
		successes:    successes,
		logger:       logger.WithField("component", "feedback"),
	}
}

// Enqueue persists the event and appends it to the in-memory queue. It
// returns the assigned event ID. High-priority events are processed before
// Enqueue returns, and only that event; the rest of the queue stays put.
func (q *Queue) Enqueue(ev *Event) (string, error) {
	ev.Priority = ClampPriority(ev.Priority)

	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	q.l.Lock()

	q.seq++
	seq := q.seq

	q.l.Unlock()

	buf, err := ev.Marshal()
	if err != nil {
		return "", err
	}

	ev.ID = fmt.Sprintf("event.%06d.%s", seq, crypto.SHA256Hex(buf)[:12])

	// Durability first: the raw event hits the archive before any processing.
	archived, err := ev.Marshal()
	if err != nil {
		return "", err
	}
	if err := q.archive.Put(ev.ID, archived); err != nil {
		return "", err
	}

	if ev.Priority >= HighPriority {
		q.dispatch(ev)

		q.l.Lock()
		q.processed++
		q.l.Unlock()

		return ev.ID, nil
	}

	q.l.Lock()
	q.events = append(q.events, ev)
	q.l.Unlock()

	return ev.ID, nil
}

// Process drains the queue in descending priority order and returns the
// number of events processed. The processed counter is monotonic.
func (q *Queue) Process() int {
	q.l.Lock()

	batch := q.events
	q.events = nil

	q.l.Unlock()

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Priority > batch[j].Priority
	})

	for _, ev := range batch {
		q.dispatch(ev)
	}

	q.l.Lock()
	q.processed += len(batch)
	q.l.Unlock()

	return len(batch)
}

// Len returns the number of events waiting for the next Process call.
func (q *Queue) Len() int {
	q.l.Lock()
	defer q.l.Unlock()

	return len(q.events)
}

// Processed returns the total number of events processed so far.
func (q *Queue) Processed() int {
	q.l.Lock()
	defer q.l.Unlock()

	return q.processed
}

// dispatch routes one event. Per-event failures are logged and contained;
// nothing an event does can take the queue down.
func (q *Queue) dispatch(ev *Event) {
	switch ev.Type {
	case TypeLearning:
		if err := q.learner.SubmitLearning(ev.SubKiID, ev.Data); err != nil {
			q.logger.WithError(err).WithField("sub_ki_id", ev.SubKiID).Error("Forwarding learning data")
		}

	case TypeError:
		q.appendErrorLog(ev)

	case TypeSuccess:
		q.successes.RecordSuccess(ev.SubKiID, ev.Data)

	case TypeBlockShare:
		if err := q.blocks.SubmitSharedBlock(ev.SubKiID, ev.Data); err != nil {
			q.logger.WithError(err).WithField("sub_ki_id", ev.SubKiID).Error("Processing shared block")
		}

	default:
		q.logger.WithFields(logrus.Fields{
			"event_type": ev.Type,
			"sub_ki_id":  ev.SubKiID,
		}).Warn("Unknown feedback event type, dropping")
	}
}

// appendErrorLog writes the event as one JSON line to the error log file.
func (q *Queue) appendErrorLog(ev *Event) {
	line, err := ev.Marshal()
	if err != nil {
		q.logger.WithError(err).Error("Marshalling error event")
		return
	}

	f, err := os.OpenFile(q.errorLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		q.logger.WithError(err).Error("Opening error log")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		q.logger.WithError(err).Error("Appending error event")
	}
}
