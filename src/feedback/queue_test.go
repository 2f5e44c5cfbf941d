package feedback

import (
	"bufio"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/subki/federation/src/common"
	"github.com/subki/federation/src/proxy/inmem"
	"github.com/subki/federation/src/store"
)

type sinkRecorder struct {
	sharedBlocks []string
	successes    []string
}

func (r *sinkRecorder) SubmitSharedBlock(nodeID string, data map[string]interface{}) error {
	r.sharedBlocks = append(r.sharedBlocks, nodeID)
	return nil
}

func (r *sinkRecorder) RecordSuccess(nodeID string, data map[string]interface{}) {
	r.successes = append(r.successes, nodeID)
}

func initQueue(t *testing.T) (*Queue, *inmem.InmemProxy, *sinkRecorder, store.Store, string) {
	dir, err := ioutil.TempDir("", "feedback")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	archive, err := store.NewFileStore(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatal(err)
	}

	learner := inmem.NewInmemProxy(common.NewTestLogger(t))
	sinks := &sinkRecorder{}
	errorLog := filepath.Join(dir, "errors.log")

	queue := NewQueue(archive, errorLog, learner, sinks, sinks, common.NewTestEntry(t))

	return queue, learner, sinks, archive, errorLog
}

func TestClampPriority(t *testing.T) {
	if ClampPriority(0) != MinPriority {
		t.Fatal("0 should clamp to MinPriority")
	}
	if ClampPriority(99) != MaxPriority {
		t.Fatal("99 should clamp to MaxPriority")
	}
	if ClampPriority(5) != 5 {
		t.Fatal("in-range priority should pass through")
	}
}

func TestEnqueueDurability(t *testing.T) {
	queue, _, _, archive, _ := initQueue(t)

	id, err := queue.Enqueue(&Event{
		SubKiID:  "node-a",
		Type:     TypeLearning,
		Data:     map[string]interface{}{"epochs": "12"},
		Priority: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The raw event is on disk before any processing happened.
	buf, err := archive.Get(id)
	if err != nil {
		t.Fatal(err)
	}

	back := new(Event)
	if err := back.Unmarshal(buf); err != nil {
		t.Fatal(err)
	}
	if back.SubKiID != "node-a" || back.Type != TypeLearning {
		t.Fatalf("archived event mismatch: %+v", back)
	}

	if queue.Len() != 1 {
		t.Fatalf("got queue length %d, want 1", queue.Len())
	}
	if queue.Processed() != 0 {
		t.Fatal("low-priority event should not be processed at enqueue")
	}
}

func TestHighPriorityInline(t *testing.T) {
	queue, learner, _, _, _ := initQueue(t)

	// a low-priority event waits in the queue
	queue.Enqueue(&Event{SubKiID: "node-b", Type: TypeLearning, Priority: 2})

	// a high-priority event is processed inline, without draining the rest
	_, err := queue.Enqueue(&Event{SubKiID: "node-a", Type: TypeLearning, Priority: 9})
	if err != nil {
		t.Fatal(err)
	}

	subs := learner.Submissions()
	if len(subs) != 1 || subs[0].NodeID != "node-a" {
		t.Fatalf("only the high-priority event should be processed, got %v", subs)
	}

	if queue.Len() != 1 {
		t.Fatal("the low-priority event should still be queued")
	}
	if queue.Processed() != 1 {
		t.Fatalf("got processed=%d, want 1", queue.Processed())
	}
}

func TestProcessDrainsByPriority(t *testing.T) {
	queue, learner, _, _, _ := initQueue(t)

	queue.Enqueue(&Event{SubKiID: "low", Type: TypeLearning, Priority: 2})
	queue.Enqueue(&Event{SubKiID: "mid", Type: TypeLearning, Priority: 5})
	queue.Enqueue(&Event{SubKiID: "high", Type: TypeLearning, Priority: 7})

	n := queue.Process()
	if n != 3 {
		t.Fatalf("got %d processed, want 3", n)
	}

	subs := learner.Submissions()
	order := []string{subs[0].NodeID, subs[1].NodeID, subs[2].NodeID}
	expected := []string{"high", "mid", "low"}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("got order %v, want %v", order, expected)
		}
	}

	if queue.Len() != 0 {
		t.Fatal("queue should be empty after Process")
	}
	if queue.Processed() != 3 {
		t.Fatalf("got processed=%d, want 3", queue.Processed())
	}

	// counter is monotonic across drains
	queue.Enqueue(&Event{SubKiID: "later", Type: TypeLearning, Priority: 1})
	queue.Process()
	if queue.Processed() != 4 {
		t.Fatalf("got processed=%d, want 4", queue.Processed())
	}
}

func TestRouting(t *testing.T) {
	queue, learner, sinks, _, errorLog := initQueue(t)

	queue.Enqueue(&Event{SubKiID: "node-a", Type: TypeLearning, Priority: 5})
	queue.Enqueue(&Event{SubKiID: "node-b", Type: TypeError, Priority: 5, Data: map[string]interface{}{"message": "disk full"}})
	queue.Enqueue(&Event{SubKiID: "node-c", Type: TypeSuccess, Priority: 5})
	queue.Enqueue(&Event{SubKiID: "node-d", Type: TypeBlockShare, Priority: 5})

	queue.Process()

	if subs := learner.Submissions(); len(subs) != 1 || subs[0].NodeID != "node-a" {
		t.Fatalf("learning routing failed: %v", subs)
	}
	if len(sinks.successes) != 1 || sinks.successes[0] != "node-c" {
		t.Fatalf("success routing failed: %v", sinks.successes)
	}
	if len(sinks.sharedBlocks) != 1 || sinks.sharedBlocks[0] != "node-d" {
		t.Fatalf("block_share routing failed: %v", sinks.sharedBlocks)
	}

	// the error event landed as one JSON line
	f, err := os.Open(errorLog)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("error log line is not JSON: %v", err)
		}
		if rec["sub_ki_id"] != "node-b" {
			t.Fatalf("unexpected error record: %v", rec)
		}
		lines++
	}
	if lines != 1 {
		t.Fatalf("got %d error lines, want 1", lines)
	}
}

func TestUnknownEventType(t *testing.T) {
	queue, _, _, _, _ := initQueue(t)

	if _, err := queue.Enqueue(&Event{SubKiID: "node-a", Type: "telepathy", Priority: 9}); err != nil {
		t.Fatalf("unknown type must not error the caller: %v", err)
	}

	queue.Enqueue(&Event{SubKiID: "node-a", Type: "astrology", Priority: 2})
	if n := queue.Process(); n != 1 {
		t.Fatalf("unknown events still count as processed, got %d", n)
	}
}
