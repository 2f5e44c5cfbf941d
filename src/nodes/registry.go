package nodes

import (
	"sort"
	"sync"

	cm "github.com/subki/federation/src/common"
)

// Registry keeps track of the nodes that are allowed to talk to the
// aggregator. Registration is owned by the bootstrap layer; everything in the
// consensus core only reads from it.
type Registry interface {
	// Register records a node, overwriting any previous registration under
	// the same ID.
	Register(node *Node) error
	// Get returns a node by ID, or a common.StoreErr with code UnknownNode.
	Get(id string) (*Node, error)
	// List returns all registered nodes sorted by ID.
	List() []*Node
}

// InmemRegistry is a mutex-guarded, map-backed Registry.
type InmemRegistry struct {
	sync.RWMutex
	byID map[string]*Node
}

// NewInmemRegistry ...
func NewInmemRegistry() *InmemRegistry {
	return &InmemRegistry{
		byID: make(map[string]*Node),
	}
}

// Register implements the Registry interface.
func (r *InmemRegistry) Register(node *Node) error {
	r.Lock()
	defer r.Unlock()

	r.byID[node.ID] = node

	return nil
}

// Get implements the Registry interface.
func (r *InmemRegistry) Get(id string) (*Node, error) {
	r.RLock()
	defer r.RUnlock()

	node, ok := r.byID[id]
	if !ok {
		return nil, cm.NewStoreErr("Registry", cm.UnknownNode, id)
	}

	return node, nil
}

// List implements the Registry interface.
func (r *InmemRegistry) List() []*Node {
	r.RLock()
	defer r.RUnlock()

	res := make([]*Node, 0, len(r.byID))
	for _, n := range r.byID {
		res = append(res, n)
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res
}
