package proposal

import (
	"bytes"
	"crypto/ed25519"

	"github.com/subki/federation/src/crypto"
	"github.com/subki/federation/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

// Proposal is a candidate knowledge item submitted by a node. It is signed by
// the submitting node over the canonical encoding of every field except
// Signature and PubKey.
type Proposal struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Topic      string   `json:"topic"`
	Tags       []string `json:"tags"`
	Timestamp  string   `json:"timestamp"`
	NodeID     string   `json:"node_id"`
	Confidence float64  `json:"confidence"`
	RolePrompt string   `json:"role_prompt,omitempty"`
	Reflection string   `json:"reflection,omitempty"`
	Signature  string   `json:"signature"`
	PubKey     string   `json:"pubkey"`
}

// signingPayload is the subset of a Proposal that is covered by the
// signature. It mirrors Proposal minus Signature and PubKey.
type signingPayload struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Topic      string   `json:"topic"`
	Tags       []string `json:"tags"`
	Timestamp  string   `json:"timestamp"`
	NodeID     string   `json:"node_id"`
	Confidence float64  `json:"confidence"`
	RolePrompt string   `json:"role_prompt"`
	Reflection string   `json:"reflection"`
}

// SigningBytes returns the canonical json encoding of the proposal without
// its Signature and PubKey fields. Canonical mode sorts object keys, so the
// bytes are stable regardless of the field order the submitter used.
func (p *Proposal) SigningBytes() ([]byte, error) {
	payload := signingPayload{
		Title:      p.Title,
		Content:    p.Content,
		Topic:      p.Topic,
		Tags:       p.Tags,
		Timestamp:  p.Timestamp,
		NodeID:     p.NodeID,
		Confidence: p.Confidence,
		RolePrompt: p.RolePrompt,
		Reflection: p.Reflection,
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(payload); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Sign signs the proposal with the node's private key and fills in the
// Signature and PubKey fields.
func (p *Proposal) Sign(priv ed25519.PrivateKey) error {
	signBytes, err := p.SigningBytes()
	if err != nil {
		return err
	}

	p.Signature = keys.Sign(priv, signBytes)
	p.PubKey = keys.PublicKeyHex(priv.Public().(ed25519.PublicKey))

	return nil
}

// Verify checks the proposal's signature against its embedded public key. It
// returns false, never an error, on any malformed or failed input; an invalid
// signature is indistinguishable from a signature-scheme mismatch.
func (p *Proposal) Verify() bool {
	signBytes, err := p.SigningBytes()
	if err != nil {
		return false
	}

	return keys.Verify(p.PubKey, signBytes, p.Signature)
}

// ContentHash returns the hex SHA256 of the Content alone. Two proposals with
// the same content have the same hash no matter how their titles or topics
// are worded; it is the key used for deduplication.
func (p *Proposal) ContentHash() string {
	return crypto.SHA256Hex([]byte(p.Content))
}

// TopicKey returns the grouping key used by consensus: the Topic, or the
// Title when the topic is empty.
func (p *Proposal) TopicKey() string {
	if p.Topic != "" {
		return p.Topic
	}
	return p.Title
}

// Marshal - json encoding of the full proposal, signature included.
func (p *Proposal) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(p); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (p *Proposal) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(p)
}
