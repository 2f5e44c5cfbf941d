package trust

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/subki/federation/src/common"
)

func initStore(t *testing.T) (*Store, string) {
	dir, err := ioutil.TempDir("", "trust")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "trust.json")

	store, err := NewStore(path, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}

	return store, path
}

func TestDefaultScore(t *testing.T) {
	store, path := initStore(t)

	if score := store.Get("unseen"); score != DefaultScore {
		t.Fatalf("got %v, want default %v", score, DefaultScore)
	}

	// A pure read must not create the file.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("Get should not persist anything")
	}

	// A second read returns the same value.
	if score := store.Get("unseen"); score != DefaultScore {
		t.Fatalf("got %v, want default %v", score, DefaultScore)
	}
}

func TestClamping(t *testing.T) {
	store, _ := initStore(t)

	cases := []struct {
		name     string
		run      func() (float64, error)
		expected float64
	}{
		{"set above one", func() (float64, error) { return store.SetAbsolute("a", 1.5) }, 1.0},
		{"set below zero", func() (float64, error) { return store.SetAbsolute("a", -0.3) }, 0.0},
		{"set in range", func() (float64, error) { return store.SetAbsolute("a", 0.95) }, 0.95},
		{"delta clamped high", func() (float64, error) { return store.ApplyDelta("a", 0.2) }, 1.0},
		{"delta in range", func() (float64, error) { return store.ApplyDelta("a", -0.25) }, 0.75},
		{"delta clamped low", func() (float64, error) { return store.ApplyDelta("a", -2.0) }, 0.0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stored, err := c.run()
			if err != nil {
				t.Fatal(err)
			}
			if stored != c.expected {
				t.Fatalf("got %v, want %v", stored, c.expected)
			}
		})
	}
}

func TestDeltaFromDefault(t *testing.T) {
	store, _ := initStore(t)

	stored, err := store.ApplyDelta("fresh", 0.1)
	if err != nil {
		t.Fatal(err)
	}

	if stored != DefaultScore+0.1 {
		t.Fatalf("got %v, want %v", stored, DefaultScore+0.1)
	}
}

func TestPersistence(t *testing.T) {
	store, path := initStore(t)

	if _, err := store.SetAbsolute("a", 0.42); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetAbsolute("b", 0.9); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewStore(path, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}

	if score := reloaded.Get("a"); score != 0.42 {
		t.Fatalf("got %v, want 0.42", score)
	}
	if score := reloaded.Get("b"); score != 0.9 {
		t.Fatalf("got %v, want 0.9", score)
	}
}

func TestConcurrentDeltas(t *testing.T) {
	store, _ := initStore(t)

	if _, err := store.SetAbsolute("x", 0.0); err != nil {
		t.Fatal(err)
	}

	// 50 concurrent +0.01 deltas must all be observed: no lost updates.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.ApplyDelta("x", 0.01)
		}()
	}
	wg.Wait()

	got := store.Get("x")
	if got < 0.499 || got > 0.501 {
		t.Fatalf("got %v, want 0.5", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store, _ := initStore(t)

	store.SetAbsolute("a", 0.5)

	snap := store.Snapshot()

	store.SetAbsolute("a", 0.1)

	if snap["a"] != 0.5 {
		t.Fatalf("snapshot should not see later writes, got %v", snap["a"])
	}
}
