package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/subki/federation/src/aggregator"
	"github.com/subki/federation/src/feedback"
	"github.com/subki/federation/src/proposal"
)

// Service exposes the aggregator over HTTP. Handlers are serialized with a
// single mutex; the aggregator's own locks protect finer-grained state, the
// service lock keeps whole requests from interleaving.
type Service struct {
	sync.Mutex

	bindAddress string
	agg         *aggregator.Aggregator
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, agg *aggregator.Aggregator, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		agg:         agg,
		mux:         http.NewServeMux(),
		logger:      logger.WithField("component", "service"),
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.mux.HandleFunc("/proposals", s.makeHandler(s.SubmitProposals))
	s.mux.HandleFunc("/trust", s.makeHandler(s.Trust))
	s.mux.HandleFunc("/summary", s.makeHandler(s.GetSummary))
	s.mux.HandleFunc("/feedback", s.makeHandler(s.SubmitFeedback))
	s.mux.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving aggregator API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// SubmitProposals handles POST /proposals. The body is a JSON array of signed
// proposals; the response reports what the batch achieved.
func (s *Service) SubmitProposals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var batch []*proposal.Proposal
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		s.logger.WithError(err).Error("Decoding proposal batch")

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	result := s.agg.SubmitProposals(batch)

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(result)
}

// trustRequest is the body of a POST /trust call. Exactly one of Trust and
// Delta must be set.
type trustRequest struct {
	NodeID string   `json:"node_id"`
	Trust  *float64 `json:"trust"`
	Delta  *float64 `json:"delta"`
}

// Trust handles GET and POST /trust. GET returns the full trust map; POST
// applies an absolute score or a delta to one node and returns the updated
// map.
func (s *Service) Trust(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")

		json.NewEncoder(w).Encode(s.agg.TrustMap())

		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.NodeID == "" {
		http.Error(w, "node_id is required", http.StatusBadRequest)
		return
	}

	updated, err := s.agg.UpdateTrust(req.NodeID, req.Trust, req.Delta)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(updated)
}

// GetSummary handles GET /summary.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.agg.Summary())
}

// SubmitFeedback handles POST /feedback. The body is one feedback event.
func (s *Service) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev feedback.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.agg.SubmitFeedback(&ev)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(result)
}

// GetBlock handles GET /block/<id>.
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/block/"):]

	block, err := s.agg.Ledger.Get(id)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving block %s", id)

		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(block)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.agg.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}
