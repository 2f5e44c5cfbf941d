package service

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/subki/federation/src/aggregator"
	"github.com/subki/federation/src/common"
	"github.com/subki/federation/src/config"
	"github.com/subki/federation/src/crypto/keys"
	"github.com/subki/federation/src/ledger"
	"github.com/subki/federation/src/nodes"
	"github.com/subki/federation/src/proposal"
	"github.com/subki/federation/src/proxy/inmem"
)

func testServer(t *testing.T) (*httptest.Server, *nodes.InmemRegistry) {
	conf := config.NewTestConfig(t)
	conf.SetDataDir(t.TempDir())

	registry := nodes.NewInmemRegistry()

	agg := aggregator.NewAggregator(conf, registry, inmem.NewInmemProxy(nil))
	if err := agg.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(agg.Shutdown)

	service := NewService("", agg, common.NewTestEntry(t))

	srv := httptest.NewServer(service.mux)
	t.Cleanup(srv.Close)

	return srv, registry
}

func registerNode(t *testing.T, registry *nodes.InmemRegistry, id string) ed25519.PrivateKey {
	pub, priv, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	err = registry.Register(&nodes.Node{ID: id, PubKeyHex: keys.PublicKeyHex(pub)})
	if err != nil {
		t.Fatal(err)
	}

	return priv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestProposalsEndpoint(t *testing.T) {
	srv, registry := testServer(t)
	priv := registerNode(t, registry, "node_a")

	p := &proposal.Proposal{
		Title:      "HTTP handlers",
		Content:    "http.Handler is an interface with one method",
		Topic:      "go",
		Timestamp:  "2024-01-15T10:00:00Z",
		NodeID:     "node_a",
		Confidence: 0.95,
	}
	if err := p.Sign(priv); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, srv.URL+"/proposals", []*proposal.Proposal{p})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	var result aggregator.SubmitResult
	decodeBody(t, resp, &result)

	if result.Accepted != 1 {
		t.Fatalf("accepted_count: got %d, want 1", result.Accepted)
	}
	if result.Merge.Written != 1 {
		t.Fatalf("written: got %d, want 1", result.Merge.Written)
	}
}

func TestProposalsEndpointRejectsMalformedBody(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/proposals", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestTrustEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	// Neither trust nor delta is a client error.
	resp := postJSON(t, srv.URL+"/trust", map[string]interface{}{"node_id": "node_a"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("neither field: got %d, want 400", resp.StatusCode)
	}

	// Both is too.
	resp = postJSON(t, srv.URL+"/trust", map[string]interface{}{
		"node_id": "node_a",
		"trust":   0.5,
		"delta":   0.1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("both fields: got %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/trust", map[string]interface{}{
		"node_id": "node_a",
		"trust":   0.5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("absolute set: got %d, want 200", resp.StatusCode)
	}

	var updated map[string]float64
	decodeBody(t, resp, &updated)
	if updated["node_a"] != 0.5 {
		t.Fatalf("trust: got %f, want 0.5", updated["node_a"])
	}

	// GET returns the same map.
	getResp, err := http.Get(srv.URL + "/trust")
	if err != nil {
		t.Fatal(err)
	}
	var fetched map[string]float64
	decodeBody(t, getResp, &fetched)
	if fetched["node_a"] != 0.5 {
		t.Fatalf("GET trust: got %f, want 0.5", fetched["node_a"])
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv, registry := testServer(t)
	registerNode(t, registry, "node_a")

	resp, err := http.Get(srv.URL + "/summary")
	if err != nil {
		t.Fatal(err)
	}

	var summaries []aggregator.NodeSummary
	decodeBody(t, resp, &summaries)

	if len(summaries) != 1 {
		t.Fatalf("summaries: got %d, want 1", len(summaries))
	}
	if summaries[0].NodeID != "node_a" {
		t.Fatalf("node_id: got %s, want node_a", summaries[0].NodeID)
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/feedback", map[string]interface{}{
		"sub_ki_id":  "node_a",
		"event_type": "learning",
		"data":       map[string]interface{}{"lesson": "x"},
		"priority":   3,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	var result aggregator.FeedbackResult
	decodeBody(t, resp, &result)

	if !result.Accepted || result.EventID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Missing sub_ki_id is a client error.
	resp = postJSON(t, srv.URL+"/feedback", map[string]interface{}{
		"event_type": "learning",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing sub_ki_id: got %d, want 400", resp.StatusCode)
	}
}

func TestBlockEndpoint(t *testing.T) {
	srv, registry := testServer(t)
	priv := registerNode(t, registry, "node_a")

	p := &proposal.Proposal{
		Title:      "Block lookup",
		Content:    "committed blocks are retrievable by id",
		Topic:      "ledger",
		Timestamp:  "2024-01-15T10:00:00Z",
		NodeID:     "node_a",
		Confidence: 0.95,
	}
	if err := p.Sign(priv); err != nil {
		t.Fatal(err)
	}
	postJSON(t, srv.URL+"/proposals", []*proposal.Proposal{p}).Body.Close()

	id := ledger.BlockID("ledger", "Block lookup", "committed blocks are retrievable by id")

	resp, err := http.Get(fmt.Sprintf("%s/block/%s", srv.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	var block ledger.Block
	decodeBody(t, resp, &block)

	if block.ID != id {
		t.Fatalf("block id: got %s, want %s", block.ID, id)
	}

	// Unknown id is a 404.
	resp, err = http.Get(srv.URL + "/block/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown block: got %d, want 404", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}

	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("CORS header: got %q, want *", origin)
	}

	var stats map[string]string
	decodeBody(t, resp, &stats)

	if stats["ledger_blocks"] != "0" {
		t.Fatalf("ledger_blocks: got %s, want 0", stats["ledger_blocks"])
	}
}
