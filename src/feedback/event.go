package feedback

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// Event types reported by nodes.
const (
	// TypeLearning - the node shares learning data for the collaborator.
	TypeLearning = "learning"
	// TypeError - the node reports a failure on its side.
	TypeError = "error"
	// TypeSuccess - the node reports a successful task.
	TypeSuccess = "success"
	// TypeBlockShare - the node shares a knowledge block as a proposal.
	TypeBlockShare = "block_share"
)

const (
	// MinPriority and MaxPriority bound the priority scale.
	MinPriority = 1
	MaxPriority = 10

	// HighPriority is the threshold at or above which an event is processed
	// inline with its enqueue instead of waiting for the next drain.
	HighPriority = 8
)

// Event is an asynchronous message from a node: learning data, an error, a
// success, or a block to share with the federation.
type Event struct {
	ID        string                 `json:"event_id"`
	SubKiID   string                 `json:"sub_ki_id"`
	Type      string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Priority  int                    `json:"priority"`
}

// ClampPriority forces a priority into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Marshal - canonical json encoding of the event, as written to the event
// archive.
func (e *Event) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (e *Event) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(e)
}
