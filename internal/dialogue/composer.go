package dialogue

import (
	"fmt"

	"github.com/whizzbang/audience-builder/internal/domain"
)

// FrameType discriminates outbound frames on the wire.
type FrameType string

const (
	// FrameText is a plain assistant message.
	FrameText FrameType = "text"
	// FrameComplex carries an assistant message plus the category table.
	FrameComplex FrameType = "complex"
	// FrameSelectionReceived acknowledges an out-of-band audience selection.
	FrameSelectionReceived FrameType = "selection_received"
)

// Frame is one outbound transport frame.
type Frame struct {
	Type       FrameType                 `json:"type"`
	Text       string                    `json:"text,omitempty"`
	Table      *domain.SearchResult      `json:"table,omitempty"`
	Message    string                    `json:"message,omitempty"`
	Categories []domain.SelectedCategory `json:"categories,omitempty"`
}

// Compose decides what to emit for a turn's final assistant message.
//
// A staged table rides out with the message exactly once: the returned state
// has PendingTable cleared, so replaying the same state without a new lookup
// can never re-emit the table.
func Compose(s domain.State, msg domain.Message) (Frame, domain.State) {
	if s.PendingTable != nil {
		table := s.PendingTable.Clone()
		out := s.Clone()
		out.PendingTable = nil
		return Frame{Type: FrameComplex, Text: msg.Content, Table: &table}, out
	}
	return Frame{Type: FrameText, Text: msg.Content}, s.Clone()
}

// ComposeSelectionAck answers an out-of-band audience selection without
// stepping the machine or advancing the current node. The selections are
// recorded on the state so the final summary can fold them in.
func ComposeSelectionAck(s domain.State, categories []domain.SelectedCategory) (Frame, domain.State) {
	out := s.Clone()
	out.Selections = append(out.Selections, categories...)

	word := "categories"
	if len(categories) == 1 {
		word = "category"
	}
	return Frame{
		Type:       FrameSelectionReceived,
		Message:    fmt.Sprintf("Received your selection of %d %s.", len(categories), word),
		Categories: categories,
	}, out
}
