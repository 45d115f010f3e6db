// Package domain defines the core conversation and catalog value types.
package domain

// Node identifies a conversation state machine node.
type Node string

const (
	// NodeGreet is the entry node; it greets the user exactly once per session.
	NodeGreet Node = "greet"
	// NodeIdentifySubject extracts the product the user wants audiences for.
	NodeIdentifySubject Node = "identify_subject"
	// NodeGatherBrief collects the structured marketing brief across turns.
	NodeGatherBrief Node = "gather_brief"
	// NodeLookupCatalog queries the catalog and builds the category table.
	NodeLookupCatalog Node = "lookup_catalog"
	// NodeSummarize produces the final brief summary.
	NodeSummarize Node = "summarize"
	// NodeTerminal is absorbing; no handler runs once it is reached.
	NodeTerminal Node = "terminal"
)

// Nodes lists every node the machine can occupy, in flow order.
var Nodes = []Node{
	NodeGreet,
	NodeIdentifySubject,
	NodeGatherBrief,
	NodeLookupCatalog,
	NodeSummarize,
	NodeTerminal,
}

// Valid reports whether n is a member of the fixed node set.
func (n Node) Valid() bool {
	for _, known := range Nodes {
		if n == known {
			return true
		}
	}
	return false
}

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message received from the client.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the dialogue core.
	RoleAssistant Role = "assistant"
)

// Message is a single conversation history entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SelectedCategory is one (buyer, product) pair the user picked from the table.
type SelectedCategory struct {
	BuyerCategory   string `json:"buyer_category"`
	ProductCategory string `json:"product_category"`
}

// State is one session's conversation state. Handlers receive a snapshot,
// never a shared reference, and return a new snapshot; the session registry
// owns the authoritative copy.
type State struct {
	History      []Message
	CurrentNode  Node
	FirstTurn    bool
	ProductName  string
	Brief        Brief
	SearchResult *SearchResult
	PendingTable *SearchResult
	Selections   []SelectedCategory
}

// NewState returns the initial state for a freshly created session.
func NewState() State {
	return State{
		CurrentNode: NodeGreet,
		FirstTurn:   true,
		Brief:       NewBrief(),
	}
}

// Clone deep-copies the state so a handler can build its result without
// aliasing the caller's snapshot.
func (s State) Clone() State {
	out := s
	out.History = append([]Message(nil), s.History...)
	out.Brief = s.Brief.Clone()
	out.Selections = append([]SelectedCategory(nil), s.Selections...)
	if s.SearchResult != nil {
		sr := s.SearchResult.Clone()
		out.SearchResult = &sr
	}
	if s.PendingTable != nil {
		pt := s.PendingTable.Clone()
		out.PendingTable = &pt
	}
	return out
}

// AppendMessage returns a copy of the state with msg added to the history.
func (s State) AppendMessage(role Role, content string) State {
	out := s.Clone()
	out.History = append(out.History, Message{Role: role, Content: content})
	return out
}

// LastUserMessage returns the most recent user message, or "" if none exists.
func (s State) LastUserMessage() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleUser {
			return s.History[i].Content
		}
	}
	return ""
}

// LastAssistantMessage returns the most recent assistant message, or "".
func (s State) LastAssistantMessage() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i].Content
		}
	}
	return ""
}

// Terminal reports whether the machine has reached its absorbing node.
func (s State) Terminal() bool {
	return s.CurrentNode == NodeTerminal
}
