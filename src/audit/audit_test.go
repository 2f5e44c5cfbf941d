package audit

import (
	"bufio"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/subki/federation/src/common"
)

func TestRecordAppendsJSONLines(t *testing.T) {
	dir, err := ioutil.TempDir("", "audit")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "audit.log")
	log := NewLog(path, common.NewTestEntry(t))

	log.Record(TypeDroppedInactive, "node-a", map[string]interface{}{"topic": "physics"})
	log.Record(TypeInvalidSignature, "node-b", nil)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var records []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		records = append(records, rec)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	if records[0]["type"] != TypeDroppedInactive || records[0]["node_id"] != "node-a" {
		t.Fatalf("bad first record: %v", records[0])
	}
	if records[0]["topic"] != "physics" {
		t.Fatal("context fields should be merged into the record")
	}
	if records[0]["ts"] == nil {
		t.Fatal("record should carry a timestamp")
	}
	if records[1]["type"] != TypeInvalidSignature || records[1]["node_id"] != "node-b" {
		t.Fatalf("bad second record: %v", records[1])
	}
}

func TestRecordSurvivesBadPath(t *testing.T) {
	log := NewLog("/nonexistent-dir/audit.log", common.NewTestEntry(t))

	// Must not panic or propagate.
	log.Record(TypeBlockCommitted, "node-a", nil)
}
