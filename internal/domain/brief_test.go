package domain

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestBriefMergeFillsMentionedFields(t *testing.T) {
	b := NewBrief()

	merged := b.Merge(map[Field]*string{
		FieldBudget:  strPtr("£50k"),
		FieldChannel: strPtr("digital"),
	})

	if merged[FieldBudget] != "£50k" {
		t.Errorf("expected budget to be set, got %q", merged[FieldBudget])
	}
	if merged[FieldChannel] != "digital" {
		t.Errorf("expected channel to be set, got %q", merged[FieldChannel])
	}
	if merged[FieldObjectives] != "" {
		t.Errorf("expected objectives to stay unset, got %q", merged[FieldObjectives])
	}
}

func TestBriefMergeIsMonotonic(t *testing.T) {
	b := NewBrief()
	b[FieldBudget] = "£50k"
	b[FieldObjectives] = "awareness"

	// A turn that fails to restate a field must not clear it.
	merged := b.Merge(map[Field]*string{
		FieldBudget:   nil,
		FieldChannel:  strPtr("social"),
		FieldDuration: nil,
	})

	if merged[FieldBudget] != "£50k" {
		t.Errorf("budget was cleared by merge: %q", merged[FieldBudget])
	}
	if merged[FieldObjectives] != "awareness" {
		t.Errorf("objectives was cleared by merge: %q", merged[FieldObjectives])
	}
	if merged[FieldChannel] != "social" {
		t.Errorf("channel not merged: %q", merged[FieldChannel])
	}
}

func TestBriefMergeOverwritesWithNewValue(t *testing.T) {
	b := NewBrief()
	b[FieldBudget] = "£50k"

	merged := b.Merge(map[Field]*string{FieldBudget: strPtr("£75k")})

	if merged[FieldBudget] != "£75k" {
		t.Errorf("expected explicit new value to overwrite, got %q", merged[FieldBudget])
	}
}

func TestBriefMergeDoesNotMutateReceiver(t *testing.T) {
	b := NewBrief()
	_ = b.Merge(map[Field]*string{FieldBudget: strPtr("£50k")})

	if b[FieldBudget] != "" {
		t.Errorf("Merge mutated the receiver: %q", b[FieldBudget])
	}
}

func TestBriefMissingUsesDeclaredOrder(t *testing.T) {
	b := NewBrief()
	b[FieldBudget] = "£50k"
	b[FieldChannel] = "digital"

	got := b.Missing()
	want := []Field{FieldObjectives, FieldDuration}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
}

func TestBriefComplete(t *testing.T) {
	b := NewBrief()
	if b.Complete() {
		t.Error("empty brief reported complete")
	}

	for _, f := range BriefFields {
		b[f] = "x"
	}
	if !b.Complete() {
		t.Error("filled brief reported incomplete")
	}
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := NewState()
	s = s.AppendMessage(RoleUser, "hello")
	s.Brief[FieldBudget] = "£1"

	clone := s.Clone()
	clone.History[0].Content = "changed"
	clone.Brief[FieldBudget] = "£2"

	if s.History[0].Content != "hello" {
		t.Errorf("clone shares history with original: %q", s.History[0].Content)
	}
	if s.Brief[FieldBudget] != "£1" {
		t.Errorf("clone shares brief with original: %q", s.Brief[FieldBudget])
	}
}

func TestLastUserMessage(t *testing.T) {
	s := NewState()
	if got := s.LastUserMessage(); got != "" {
		t.Errorf("expected empty, got %q", got)
	}

	s = s.AppendMessage(RoleUser, "first")
	s = s.AppendMessage(RoleAssistant, "reply")
	s = s.AppendMessage(RoleUser, "second")

	if got := s.LastUserMessage(); got != "second" {
		t.Errorf("LastUserMessage() = %q, want %q", got, "second")
	}
}

func TestNodeValid(t *testing.T) {
	for _, n := range Nodes {
		if !n.Valid() {
			t.Errorf("node %q reported invalid", n)
		}
	}
	if Node("made_up").Valid() {
		t.Error("unknown node reported valid")
	}
}
