package nodes

import (
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	cm "github.com/subki/federation/src/common"
)

func TestInmemRegistry(t *testing.T) {
	registry := NewInmemRegistry()

	if _, err := registry.Get("alpha"); !cm.IsStore(err, cm.UnknownNode) {
		t.Fatalf("expected UnknownNode, got %v", err)
	}

	registry.Register(NewNode("alpha", "0XAAAA", "first"))
	registry.Register(NewNode("beta", "0XBBBB", "second"))

	node, err := registry.Get("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if node.Moniker != "first" {
		t.Fatalf("got moniker %q, want %q", node.Moniker, "first")
	}

	// Re-registration overwrites.
	registry.Register(NewNode("alpha", "0XCCCC", "replacement"))

	node, _ = registry.Get("alpha")
	if node.PubKeyHex != "0XCCCC" {
		t.Fatalf("re-registration should overwrite, got %q", node.PubKeyHex)
	}

	list := registry.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(list))
	}
	if list[0].ID != "alpha" || list[1].ID != "beta" {
		t.Fatalf("List should be sorted by ID, got %v %v", list[0].ID, list[1].ID)
	}
}

func TestJSONRegistry(t *testing.T) {
	dir, err := ioutil.TempDir("", "registry")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	jsonRegistry := NewJSONRegistry(dir)

	nodesIn := []*Node{
		NewNode("alpha", "0xaaaa", ""),
		NewNode("beta", "0XBBBB", "second"),
	}

	if err := jsonRegistry.Write(nodesIn); err != nil {
		t.Fatal(err)
	}

	registry, err := jsonRegistry.Nodes()
	if err != nil {
		t.Fatal(err)
	}

	// pubkeys are cleansed to the 0X upper-case form on read
	alpha, err := registry.Get("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if alpha.PubKeyHex != "0XAAAA" {
		t.Fatalf("got %q, want cleansed %q", alpha.PubKeyHex, "0XAAAA")
	}

	expected := []string{"alpha", "beta"}
	got := []string{}
	for _, n := range registry.List() {
		got = append(got, n.ID)
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %v, want %v", got, expected)
	}
}

func TestActiveSet(t *testing.T) {
	var nilSet *ActiveSet

	if nilSet.Enabled() {
		t.Fatal("nil set should not be enabled")
	}
	if !nilSet.Contains("anything") {
		t.Fatal("nil set should contain everything")
	}

	empty := NewActiveSet(nil)
	if empty.Enabled() {
		t.Fatal("empty set should not be enabled")
	}
	if !empty.Contains("anything") {
		t.Fatal("empty set should contain everything")
	}

	set := NewActiveSet([]string{"alpha", "beta"})
	if !set.Enabled() {
		t.Fatal("set should be enabled")
	}
	if !set.Contains("alpha") {
		t.Fatal("alpha should be active")
	}
	if set.Contains("gamma") {
		t.Fatal("gamma should not be active")
	}
}
