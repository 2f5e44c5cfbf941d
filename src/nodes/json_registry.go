package nodes

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"
)

const jsonRegistryPath = "nodes.json"

// JSONRegistry is used to provide node persistence on disk in the form of a
// JSON file.
type JSONRegistry struct {
	l    sync.Mutex
	path string
}

// NewJSONRegistry creates a new JSONRegistry with reference to a base
// directory where the JSON file resides.
func NewJSONRegistry(base string) *JSONRegistry {
	return &JSONRegistry{
		path: filepath.Join(base, jsonRegistryPath),
	}
}

// Nodes parses the underlying JSON file and returns the corresponding
// InmemRegistry.
func (j *JSONRegistry) Nodes() (*InmemRegistry, error) {
	j.l.Lock()
	defer j.l.Unlock()

	// Read the file
	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	registry := NewInmemRegistry()

	// Check for no nodes
	if len(buf) == 0 {
		return registry, nil
	}

	// Decode the nodes
	var list []*Node
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&list); err != nil {
		return nil, err
	}

	cleanseNodes(list)

	for _, n := range list {
		registry.Register(n)
	}

	return registry, nil
}

// cleanseNodes standardises the public key strings to match the format the
// aggregator derives from a private key.
func cleanseNodes(list []*Node) {
	for _, n := range list {
		n.PubKeyHex = "0X" + strings.TrimPrefix(strings.ToUpper(n.PubKeyHex), "0X")
	}
}

// Write persists a list of nodes to the JSON file.
func (j *JSONRegistry) Write(list []*Node) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(list); err != nil {
		return err
	}

	// Write out as JSON
	return ioutil.WriteFile(j.path, buf.Bytes(), 0755)
}
