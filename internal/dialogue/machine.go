// Package dialogue implements the turn-based conversation state machine,
// its node handlers, and the response composer.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/whizzbang/audience-builder/internal/brief"
	"github.com/whizzbang/audience-builder/internal/catalog"
	"github.com/whizzbang/audience-builder/internal/config"
	"github.com/whizzbang/audience-builder/internal/domain"
	"github.com/whizzbang/audience-builder/internal/llm"
)

// handlerFunc is one node handler: a pure function from a state snapshot to
// a new state snapshot. A handler either appends no assistant message and
// keeps the current node (waiting for input), or appends exactly one
// assistant message; routing is handler-directed — the handler itself sets
// CurrentNode to its chosen successor.
type handlerFunc func(ctx context.Context, s domain.State) (domain.State, error)

// Machine sequences node handlers over conversation state.
type Machine struct {
	client    llm.Client
	extractor *brief.Extractor
	lookup    catalog.Lookup
	resume    config.GreetingResume
	logger    *slog.Logger
	handlers  map[domain.Node]handlerFunc
}

// NewMachine builds the machine and its transition table. Construction fails
// if any non-terminal node lacks a handler, so the table stays exhaustive.
func NewMachine(client llm.Client, lookup catalog.Lookup, resume config.GreetingResume, logger *slog.Logger) (*Machine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		client:    client,
		extractor: brief.NewExtractor(client),
		lookup:    lookup,
		resume:    resume,
		logger:    logger,
	}
	m.handlers = map[domain.Node]handlerFunc{
		domain.NodeGreet:           m.greet,
		domain.NodeIdentifySubject: m.identifySubject,
		domain.NodeGatherBrief:     m.gatherBrief,
		domain.NodeLookupCatalog:   m.lookupCatalog,
		domain.NodeSummarize:       m.summarize,
	}

	for _, node := range domain.Nodes {
		if node == domain.NodeTerminal {
			continue
		}
		if _, ok := m.handlers[node]; !ok {
			return nil, fmt.Errorf("dialogue: node %q has no handler", node)
		}
	}
	return m, nil
}

// step invokes the current node's handler exactly once.
func (m *Machine) step(ctx context.Context, s domain.State) (domain.State, error) {
	if s.Terminal() {
		return s, ErrTerminalStep
	}
	h, ok := m.handlers[s.CurrentNode]
	if !ok {
		return s, fmt.Errorf("dialogue: no handler for node %q", s.CurrentNode)
	}

	next, err := h(ctx, s)
	if err != nil {
		return s, err
	}
	if !next.CurrentNode.Valid() {
		return s, fmt.Errorf("dialogue: handler for %q routed to unknown node %q", s.CurrentNode, next.CurrentNode)
	}
	return next, nil
}

// RunTurn processes one user turn: it steps the current node and keeps
// stepping while handlers advance to new nodes, stopping when a handler
// holds its node (waiting for the next turn) or the terminal node is
// reached. The iteration cap guards against a routing bug cycling nodes.
//
// A turn may append several assistant messages to the history (for example
// a brief-complete acknowledgment, a lookup confirmation, and the final
// summary); only the last one is transmitted to the client — the composer
// receives a single message per turn.
func (m *Machine) RunTurn(ctx context.Context, s domain.State) (domain.State, error) {
	if s.Terminal() {
		return s, nil
	}

	for i := 0; i < len(domain.Nodes); i++ {
		prev := s.CurrentNode
		next, err := m.step(ctx, s)
		if err != nil {
			return s, err
		}
		s = next

		m.logger.Debug("dialogue step", "from", prev, "to", s.CurrentNode)
		if s.CurrentNode == prev || s.Terminal() {
			break
		}
	}
	return s, nil
}
