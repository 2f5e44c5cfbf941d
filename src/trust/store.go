package trust

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultScore is the trust attributed to a node the aggregator has never
	// received feedback about.
	DefaultScore = 0.8
)

// Store is the single authoritative mapping from node ID to trust score. All
// scores live in [0,1]. The full map is held in memory and rewritten to disk,
// via a temporary file and a rename, on every mutation; a crash mid-write
// leaves either the old map or the new one, never a torn file.
//
// Store is the only writer of its file. Concurrent mutators serialize on the
// internal mutex so that two deltas can never be computed from the same stale
// read.
type Store struct {
	sync.Mutex

	path   string
	scores map[string]float64
	logger *logrus.Entry
}

// NewStore loads the trust map from path, or starts empty if the file does
// not exist yet.
func NewStore(path string, logger *logrus.Entry) (*Store, error) {
	store := &Store{
		path:   path,
		scores: make(map[string]float64),
		logger: logger.WithField("component", "trust"),
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return store, nil
	}

	if len(buf) > 0 {
		if err := json.Unmarshal(buf, &store.scores); err != nil {
			return nil, err
		}
	}

	for id, score := range store.scores {
		store.scores[id] = clamp(score)
	}

	return store, nil
}

// Get returns the stored score for a node, or DefaultScore if the node has
// never been scored. A Get never writes anything.
func (s *Store) Get(nodeID string) float64 {
	s.Lock()
	defer s.Unlock()

	return s.get(nodeID)
}

func (s *Store) get(nodeID string) float64 {
	if score, ok := s.scores[nodeID]; ok {
		return score
	}
	return DefaultScore
}

// SetAbsolute clamps value to [0,1], stores it for the node, persists the map,
// and returns the stored value.
func (s *Store) SetAbsolute(nodeID string, value float64) (float64, error) {
	s.Lock()
	defer s.Unlock()

	stored := clamp(value)
	s.scores[nodeID] = stored

	if err := s.persist(); err != nil {
		return stored, err
	}

	s.logger.WithFields(logrus.Fields{
		"node_id": nodeID,
		"trust":   stored,
	}).Debug("Trust set")

	return stored, nil
}

// ApplyDelta adds delta to the node's current score (or DefaultScore if
// unseen), clamps the result to [0,1], persists the map, and returns the
// stored value. The read and the write happen under one lock acquisition.
func (s *Store) ApplyDelta(nodeID string, delta float64) (float64, error) {
	s.Lock()
	defer s.Unlock()

	stored := clamp(s.get(nodeID) + delta)
	s.scores[nodeID] = stored

	if err := s.persist(); err != nil {
		return stored, err
	}

	s.logger.WithFields(logrus.Fields{
		"node_id": nodeID,
		"delta":   delta,
		"trust":   stored,
	}).Debug("Trust delta applied")

	return stored, nil
}

// Snapshot returns a copy of the whole trust map. Consensus merges read from
// a snapshot so that every proposal in a batch is ranked against the same
// scores, even if feedback lands mid-merge.
func (s *Store) Snapshot() map[string]float64 {
	s.Lock()
	defer s.Unlock()

	res := make(map[string]float64, len(s.scores))
	for id, score := range s.scores {
		res[id] = score
	}

	return res
}

// persist rewrites the full map. Callers must hold the lock.
func (s *Store) persist() error {
	buf, err := json.MarshalIndent(s.scores, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)

	tmp, err := ioutil.TempFile(dir, "trust-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}

func clamp(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
