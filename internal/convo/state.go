package convo

import (
	"encoding/json"
	"time"
)

// Node identifies a position in the conversation graph.
type Node int

const (
	// NodeStart is the graph entry point.
	NodeStart Node = iota
	// NodeModel invokes the language model with the accumulated history.
	NodeModel
	// NodeEnd terminates the walk.
	NodeEnd
)

func (n Node) String() string {
	switch n {
	case NodeStart:
		return "start"
	case NodeModel:
		return "model"
	case NodeEnd:
		return "end"
	default:
		return "unknown"
	}
}

// next returns the node that follows n. The graph is a straight line:
// start, model, end.
func (n Node) next() Node {
	switch n {
	case NodeStart:
		return NodeModel
	case NodeModel:
		return NodeEnd
	default:
		return NodeEnd
	}
}

// Message is one entry in a thread's accumulated history.
type Message struct {
	Role    string `json:"role"` // "user" or "model"
	Content string `json:"content"`
}

// State is the checkpointed state of one conversation thread.
type State struct {
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers cannot mutate checkpointed
// state through shared slices.
func (s *State) Clone() *State {
	cp := &State{UpdatedAt: s.UpdatedAt}
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return cp
}

// decodeState deserializes a checkpoint. A corrupt payload yields an
// empty state rather than an error, so a damaged checkpoint degrades
// to a fresh conversation instead of breaking the thread forever.
func decodeState(raw []byte) *State {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return &State{}
	}
	return &s
}
