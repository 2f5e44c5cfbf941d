package ledger

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/subki/federation/src/crypto"
	"github.com/subki/federation/src/crypto/keys"
	"github.com/subki/federation/src/proposal"
	"github.com/ugorji/go/codec"
)

const (
	// Provenance marks every block that entered the ledger through federated
	// consensus, as opposed to locally authored knowledge.
	Provenance = "subki"

	// FederationTag is appended to the tags of every federated block.
	FederationTag = "subki"
)

// ProvenanceAux records which node the winning proposal came from and what it
// claimed about itself.
type ProvenanceAux struct {
	NodeID     string  `json:"node_id"`
	Confidence float64 `json:"confidence"`
	RolePrompt string  `json:"role_prompt,omitempty"`
}

// Meta ...
type Meta struct {
	Provenance    string        `json:"provenance"`
	CanonicalHash string        `json:"canonical_hash"`
	ProvenanceAux ProvenanceAux `json:"provenance_aux"`
	Reflection    string        `json:"reflection,omitempty"`
}

// Block is an immutable knowledge record derived from exactly one winning
// proposal. It is re-signed by the aggregator's own key: the signature asserts
// "this passed consensus", not "this node said so" - the node's original
// signature was already checked upstream.
type Block struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Topic     string   `json:"topic"`
	Content   string   `json:"content"`
	Source    string   `json:"source"`
	Timestamp string   `json:"timestamp"`
	Meta      Meta     `json:"meta"`
	Tags      []string `json:"tags"`
	Signature string   `json:"signature"`
	PubKey    string   `json:"pubkey"`

	hash []byte
}

// blockBody mirrors Block minus Signature and PubKey; it is the part covered
// by the aggregator's signature.
type blockBody struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Topic     string   `json:"topic"`
	Content   string   `json:"content"`
	Source    string   `json:"source"`
	Timestamp string   `json:"timestamp"`
	Meta      Meta     `json:"meta"`
	Tags      []string `json:"tags"`
}

// BlockID is the deterministic identifier of a block: the hex SHA256 of
// topic, title and content. The same knowledge always lands under the same
// ID, no matter when or by whom it won consensus.
func BlockID(topic, title, content string) string {
	return crypto.SHA256Hex([]byte(topic + "|" + title + "|" + content))
}

// NewBlockFromProposal builds the canonical Block for a winning proposal. The
// returned block is unsigned; call Sign before persisting it.
func NewBlockFromProposal(p *proposal.Proposal) *Block {
	tags := make([]string, 0, len(p.Tags)+1)
	tags = append(tags, p.Tags...)
	tags = append(tags, FederationTag)

	return &Block{
		ID:        BlockID(p.TopicKey(), p.Title, p.Content),
		Title:     p.Title,
		Topic:     p.TopicKey(),
		Content:   p.Content,
		Source:    fmt.Sprintf("node:%s", p.NodeID),
		Timestamp: p.Timestamp,
		Meta: Meta{
			Provenance:    Provenance,
			CanonicalHash: p.ContentHash(),
			ProvenanceAux: ProvenanceAux{
				NodeID:     p.NodeID,
				Confidence: p.Confidence,
				RolePrompt: p.RolePrompt,
			},
			Reflection: p.Reflection,
		},
		Tags: tags,
	}
}

// SigningBytes returns the canonical json encoding of the block without its
// Signature and PubKey fields.
func (b *Block) SigningBytes() ([]byte, error) {
	body := blockBody{
		ID:        b.ID,
		Title:     b.Title,
		Topic:     b.Topic,
		Content:   b.Content,
		Source:    b.Source,
		Timestamp: b.Timestamp,
		Meta:      b.Meta,
		Tags:      b.Tags,
	}

	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	if err := enc.Encode(body); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Sign attaches the aggregator's detached signature and public key.
func (b *Block) Sign(priv ed25519.PrivateKey) error {
	signBytes, err := b.SigningBytes()
	if err != nil {
		return err
	}

	b.Signature = keys.Sign(priv, signBytes)
	b.PubKey = keys.PublicKeyHex(priv.Public().(ed25519.PublicKey))

	return nil
}

// Verify checks the aggregator signature over the block body.
func (b *Block) Verify() bool {
	signBytes, err := b.SigningBytes()
	if err != nil {
		return false
	}

	return keys.Verify(b.PubKey, signBytes, b.Signature)
}

// Hash returns the SHA256 of the full marshalled block, signature included.
func (b *Block) Hash() ([]byte, error) {
	if len(b.hash) == 0 {
		buf, err := b.Marshal()
		if err != nil {
			return nil, err
		}
		b.hash = crypto.SHA256(buf)
	}
	return b.hash, nil
}

// Marshal - json encoding of the full block.
func (b *Block) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	if err := enc.Encode(b); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(buf, jh)

	return dec.Decode(b)
}
