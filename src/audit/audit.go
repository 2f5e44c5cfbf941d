package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Record types written by the consensus core.
const (
	TypeDroppedInactive   = "dropped_inactive"
	TypeInvalidSignature  = "invalid_signature"
	TypeBlockFeedback     = "subki_block_feedback"
	TypeBlockCommitted    = "block_committed"
	TypeBlockWriteFailure = "block_write_failure"
)

// Log is an append-only side channel: one line-delimited JSON record per
// accept/reject decision. It is written to by every stage of the pipeline.
// A failed append is logged and swallowed - audit must never take a proposal
// batch down with it.
type Log struct {
	l      sync.Mutex
	path   string
	logger *logrus.Entry
}

// NewLog ...
func NewLog(path string, logger *logrus.Entry) *Log {
	return &Log{
		path:   path,
		logger: logger.WithField("component", "audit"),
	}
}

// Record appends one audit record. The fields map is merged into the record
// next to the mandatory ts, type and node_id keys.
func (a *Log) Record(recordType, nodeID string, fields map[string]interface{}) {
	record := map[string]interface{}{
		"ts":      time.Now().UTC().Format(time.RFC3339),
		"type":    recordType,
		"node_id": nodeID,
	}
	for k, v := range fields {
		record[k] = v
	}

	line, err := json.Marshal(record)
	if err != nil {
		a.logger.WithError(err).Error("Marshalling audit record")
		return
	}

	a.l.Lock()
	defer a.l.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		a.logger.WithError(err).Error("Opening audit log")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		a.logger.WithError(err).Error("Appending audit record")
	}
}
