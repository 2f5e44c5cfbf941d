package nodes

// Node represents a registered sub-KI: a remote agent authorized, via its
// public key, to submit knowledge proposals to the aggregator.
type Node struct {
	ID           string            `json:"node_id"`
	PubKeyHex    string            `json:"pubkey"`
	Moniker      string            `json:"moniker,omitempty"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
}

// NewNode ...
func NewNode(id, pubKeyHex, moniker string) *Node {
	return &Node{
		ID:        id,
		PubKeyHex: pubKeyHex,
		Moniker:   moniker,
	}
}
