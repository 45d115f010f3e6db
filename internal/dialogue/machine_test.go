package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/whizzbang/audience-builder/internal/catalog"
	"github.com/whizzbang/audience-builder/internal/config"
	"github.com/whizzbang/audience-builder/internal/domain"
	"github.com/whizzbang/audience-builder/internal/llm"
)

// fakeLLM scripts the text collaborator per call site.
type fakeLLM struct {
	generate     func(system, user string) (string, error)
	generateJSON func(system, user string, out any) error
}

func (f *fakeLLM) Generate(_ context.Context, system, user string) (string, error) {
	if f.generate == nil {
		return "generated text", nil
	}
	return f.generate(system, user)
}

func (f *fakeLLM) GenerateJSON(_ context.Context, system, user string, out any) error {
	if f.generateJSON == nil {
		return llm.ErrMalformedOutput
	}
	return f.generateJSON(system, user, out)
}

func (f *fakeLLM) Close() {}

// fakeCatalog scripts the lookup collaborator.
type fakeCatalog struct {
	records []domain.ProductRecord
	err     error
}

func (f *fakeCatalog) Query(context.Context, string) ([]domain.ProductRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeCatalog) Ping(context.Context) error { return nil }
func (f *fakeCatalog) Close() error               { return nil }

func newTestMachine(t *testing.T, client llm.Client, lookup catalog.Lookup) *Machine {
	t.Helper()
	m, err := NewMachine(client, lookup, config.ResumeIdentify, nil)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	return m
}

// jsonReply unmarshals a canned body into the extraction target.
func jsonReply(body string, out any) error {
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return llm.ErrMalformedOutput
	}
	return nil
}

// scriptedJSON routes structured extraction by prompt: product
// identification prompts mention "product", slot prompts mention "brief".
func scriptedJSON(productBody, slotsBody string) func(system, user string, out any) error {
	return func(system, _ string, out any) error {
		if strings.Contains(system, "brief fields") {
			return jsonReply(slotsBody, out)
		}
		return jsonReply(productBody, out)
	}
}

func TestNewMachineChecksTransitionTable(t *testing.T) {
	m := newTestMachine(t, &fakeLLM{}, &fakeCatalog{})

	for _, node := range domain.Nodes {
		if node == domain.NodeTerminal {
			continue
		}
		if _, ok := m.handlers[node]; !ok {
			t.Errorf("node %q missing from transition table", node)
		}
	}
}

func TestGreetingTurn(t *testing.T) {
	client := &fakeLLM{generate: func(system, _ string) (string, error) {
		return "Hello! Which product are we building audiences for?", nil
	}}
	m := newTestMachine(t, client, &fakeCatalog{})

	state, err := m.RunTurn(context.Background(), domain.NewState())
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if state.CurrentNode != domain.NodeIdentifySubject {
		t.Errorf("node = %q, want %q", state.CurrentNode, domain.NodeIdentifySubject)
	}
	if state.FirstTurn {
		t.Error("FirstTurn still set after greeting")
	}
	if got := state.LastAssistantMessage(); !strings.Contains(got, "Which product") {
		t.Errorf("greeting not emitted: %q", got)
	}
	if n := len(state.History); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
}

func TestGreetingFallsBackWhenGenerationFails(t *testing.T) {
	client := &fakeLLM{generate: func(string, string) (string, error) {
		return "", errors.New("boom")
	}}
	m := newTestMachine(t, client, &fakeCatalog{})

	state, err := m.RunTurn(context.Background(), domain.NewState())
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if state.LastAssistantMessage() != fallbackGreeting {
		t.Errorf("expected fallback greeting, got %q", state.LastAssistantMessage())
	}
	if state.CurrentNode != domain.NodeIdentifySubject {
		t.Errorf("node = %q, want %q", state.CurrentNode, domain.NodeIdentifySubject)
	}
}

func TestGreetSkippedOnResumedSession(t *testing.T) {
	m := newTestMachine(t, &fakeLLM{}, &fakeCatalog{})

	resumed := domain.NewState()
	resumed.FirstTurn = false
	resumed = resumed.AppendMessage(domain.RoleAssistant, "earlier greeting")
	resumed.CurrentNode = domain.NodeGreet

	before := len(resumed.History)
	state, err := m.RunTurn(context.Background(), resumed)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if state.CurrentNode != domain.NodeIdentifySubject {
		t.Errorf("node = %q, want %q", state.CurrentNode, domain.NodeIdentifySubject)
	}
	if len(state.History) != before {
		t.Errorf("resumed greet emitted a message: %v", state.History)
	}
}

func TestGreetResumeTerminalPolicy(t *testing.T) {
	m, err := NewMachine(&fakeLLM{}, &fakeCatalog{}, config.ResumeTerminal, nil)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}

	resumed := domain.NewState()
	resumed.FirstTurn = false
	resumed = resumed.AppendMessage(domain.RoleAssistant, "earlier greeting")

	state, err := m.RunTurn(context.Background(), resumed)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if !state.Terminal() {
		t.Errorf("node = %q, want terminal", state.CurrentNode)
	}
}

func TestIdentifyWaitsWithoutUserInput(t *testing.T) {
	m := newTestMachine(t, &fakeLLM{}, &fakeCatalog{})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeIdentifySubject
	s = s.AppendMessage(domain.RoleAssistant, "greeting")

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if state.CurrentNode != domain.NodeIdentifySubject {
		t.Errorf("node = %q, want identify_subject", state.CurrentNode)
	}
	if len(state.History) != len(s.History) {
		t.Error("waiting turn emitted a message")
	}
}

func TestIdentifyClarifiesWhenNoProductMentioned(t *testing.T) {
	client := &fakeLLM{generateJSON: scriptedJSON(`{"mentioned": false, "product_name": null}`, `{}`)}
	m := newTestMachine(t, client, &fakeCatalog{})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeIdentifySubject
	s = s.AppendMessage(domain.RoleUser, "hello there")

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if state.CurrentNode != domain.NodeIdentifySubject {
		t.Errorf("node = %q, want identify_subject", state.CurrentNode)
	}
	if state.LastAssistantMessage() != clarifyProduct {
		t.Errorf("expected clarification, got %q", state.LastAssistantMessage())
	}
}

func TestIdentifyParseFailureRepromptsInPlace(t *testing.T) {
	client := &fakeLLM{generateJSON: func(string, string, any) error {
		return llm.ErrMalformedOutput
	}}
	m := newTestMachine(t, client, &fakeCatalog{})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeIdentifySubject
	s = s.AppendMessage(domain.RoleUser, "Kettle Chips please")

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("parse failure should be recovered, got %v", err)
	}
	if state.CurrentNode != domain.NodeIdentifySubject {
		t.Errorf("node = %q, want identify_subject", state.CurrentNode)
	}
	if state.LastAssistantMessage() != restatePrompt {
		t.Errorf("expected restate prompt, got %q", state.LastAssistantMessage())
	}
}

func TestGatherBriefEnumeratesMissingFieldsInOrder(t *testing.T) {
	// Extraction finds nothing new; budget and channel are already set.
	client := &fakeLLM{generateJSON: scriptedJSON(
		`{"mentioned": true, "product_name": "Kettle Chips"}`,
		`{"objectives": null, "budget": null, "channel": null, "duration": null}`,
	)}
	m := newTestMachine(t, client, &fakeCatalog{})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeGatherBrief
	s.ProductName = "Kettle Chips"
	s.Brief[domain.FieldBudget] = "£50k"
	s.Brief[domain.FieldChannel] = "digital"
	s = s.AppendMessage(domain.RoleUser, "what else do you need?")

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if state.CurrentNode != domain.NodeGatherBrief {
		t.Errorf("node = %q, want gather_brief", state.CurrentNode)
	}
	if got := state.LastAssistantMessage(); !strings.Contains(got, "objectives, duration") {
		t.Errorf("re-prompt must list missing fields in schema order, got %q", got)
	}
}

func TestGatherBriefParseFailureKeepsSlotProgress(t *testing.T) {
	client := &fakeLLM{generateJSON: func(system, _ string, out any) error {
		return llm.ErrMalformedOutput
	}}
	m := newTestMachine(t, client, &fakeCatalog{})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeGatherBrief
	s.Brief[domain.FieldBudget] = "£50k"
	s = s.AppendMessage(domain.RoleUser, "garbled")

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("parse failure should be recovered, got %v", err)
	}
	if state.Brief[domain.FieldBudget] != "£50k" {
		t.Errorf("slot progress lost on parse failure: %q", state.Brief[domain.FieldBudget])
	}
	if state.LastAssistantMessage() != restatePrompt {
		t.Errorf("expected restate prompt, got %q", state.LastAssistantMessage())
	}
}

func TestBriefCompletionRunsLookupAndSummary(t *testing.T) {
	client := &fakeLLM{
		generateJSON: scriptedJSON(
			`{"mentioned": true, "product_name": "Kettle Chips"}`,
			`{"objectives": null, "budget": null, "channel": null, "duration": "6 weeks"}`,
		),
		generate: func(system, _ string) (string, error) {
			if strings.Contains(system, "summarising") {
				return "brief summary", nil
			}
			return "found your variants", nil
		},
	}
	lookup := &fakeCatalog{records: []domain.ProductRecord{
		{SKU: "1", Name: "Kettle Chips", BuyerCategory: "Snacking", ProductCategory: "Crisps"},
		{SKU: "2", Name: "Kettle Chips 150g", BuyerCategory: "Snacking", ProductCategory: "Crisps"},
	}}
	m := newTestMachine(t, client, lookup)

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeGatherBrief
	s.ProductName = "Kettle Chips"
	s.Brief[domain.FieldObjectives] = "awareness"
	s.Brief[domain.FieldBudget] = "£50k"
	s.Brief[domain.FieldChannel] = "digital"
	s = s.AppendMessage(domain.RoleUser, "run it for 6 weeks")

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if !state.Terminal() {
		t.Fatalf("node = %q, want terminal", state.CurrentNode)
	}
	if state.SearchResult == nil {
		t.Fatal("search result not cached")
	}
	if state.PendingTable == nil {
		t.Fatal("table not staged for delivery")
	}
	if state.SearchResult.TotalResults != 2 {
		t.Errorf("TotalResults = %d, want 2", state.SearchResult.TotalResults)
	}
	if got := state.LastAssistantMessage(); !strings.Contains(got, "brief summary") {
		t.Errorf("final message should carry the summary, got %q", got)
	}
}

func TestLookupNotFoundTerminatesWithApology(t *testing.T) {
	m := newTestMachine(t, &fakeLLM{}, &fakeCatalog{err: catalog.ErrNotFound})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeLookupCatalog
	s.ProductName = "Nonexistent"

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("not-found should be recovered, got %v", err)
	}
	if !state.Terminal() {
		t.Errorf("node = %q, want terminal", state.CurrentNode)
	}
	if state.PendingTable != nil {
		t.Error("no table should be staged on a failed lookup")
	}
	if got := state.LastAssistantMessage(); !strings.Contains(got, "couldn't find") {
		t.Errorf("expected apology, got %q", got)
	}
}

func TestCatalogTimeoutTreatedLikeNotFound(t *testing.T) {
	m := newTestMachine(t, &fakeLLM{}, &fakeCatalog{err: context.DeadlineExceeded})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeLookupCatalog
	s.ProductName = "Kettle Chips"

	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("catalog timeout should be recovered, got %v", err)
	}
	if !state.Terminal() {
		t.Errorf("node = %q, want terminal", state.CurrentNode)
	}
}

func TestUnexpectedCatalogErrorPropagates(t *testing.T) {
	m := newTestMachine(t, &fakeLLM{}, &fakeCatalog{err: errors.New("disk on fire")})

	s := domain.NewState()
	s.FirstTurn = false
	s.CurrentNode = domain.NodeLookupCatalog
	s.ProductName = "Kettle Chips"

	state, err := m.RunTurn(context.Background(), s)
	if err == nil {
		t.Fatal("expected unexpected error to propagate")
	}
	if state.CurrentNode != domain.NodeLookupCatalog {
		t.Errorf("state advanced despite error: %q", state.CurrentNode)
	}
}

func TestTerminalIsAbsorbing(t *testing.T) {
	m := newTestMachine(t, &fakeLLM{}, &fakeCatalog{})

	s := domain.NewState()
	s.CurrentNode = domain.NodeTerminal
	s = s.AppendMessage(domain.RoleUser, "anyone there?")

	before := len(s.History)
	state, err := m.RunTurn(context.Background(), s)
	if err != nil {
		t.Fatalf("RunTurn on terminal state failed: %v", err)
	}
	if !state.Terminal() {
		t.Errorf("terminal state left terminal: %q", state.CurrentNode)
	}
	if len(state.History) != before {
		t.Error("terminal state produced output")
	}
}

func TestNodeStaysInFixedSetAcrossConversation(t *testing.T) {
	client := &fakeLLM{
		generateJSON: scriptedJSON(
			`{"mentioned": true, "product_name": "Kettle Chips"}`,
			`{"objectives": "awareness", "budget": "£50k", "channel": "digital", "duration": "6 weeks"}`,
		),
	}
	lookup := &fakeCatalog{records: []domain.ProductRecord{
		{SKU: "1", Name: "Kettle Chips", BuyerCategory: "Snacking", ProductCategory: "Crisps"},
	}}
	m := newTestMachine(t, client, lookup)

	state := domain.NewState()
	turns := []string{"", "Kettle Chips please", "awareness, £50k, digital, 6 weeks"}

	for i, input := range turns {
		if input != "" {
			state = state.AppendMessage(domain.RoleUser, input)
		}
		var err error
		state, err = m.RunTurn(context.Background(), state)
		if err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
		if !state.CurrentNode.Valid() {
			t.Fatalf("turn %d left machine in unknown node %q", i, state.CurrentNode)
		}
	}

	if !state.Terminal() {
		t.Errorf("conversation should be terminal after final turn, node = %q", state.CurrentNode)
	}
}

func TestClassifyTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"malformed output", llm.ErrMalformedOutput, ErrExtractionParse},
		{"catalog miss", catalog.ErrNotFound, ErrCatalogNotFound},
		{"deadline", context.DeadlineExceeded, ErrCollaboratorTimeout},
		{"wrapped catalog miss", fmt.Errorf("query: %w", catalog.ErrNotFound), ErrCatalogNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.in); !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	plain := errors.New("plain")
	if got := classify(plain); !errors.Is(got, plain) {
		t.Errorf("unknown errors must pass through, got %v", got)
	}
}
