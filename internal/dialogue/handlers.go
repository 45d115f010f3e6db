package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/whizzbang/audience-builder/internal/catalog"
	"github.com/whizzbang/audience-builder/internal/config"
	"github.com/whizzbang/audience-builder/internal/domain"
)

const (
	greetSystemPrompt = `You are an audience building assistant for a retail media platform.
Greet the user warmly and ask which product they'd like to build audiences for.
Don't sound cheesy or corporate. Two sentences at most.`

	fallbackGreeting = "Hi! Which product would you like to build audiences for?"

	clarifyProduct = "I'm not sure which product you're referring to. Can you clarify?"

	restatePrompt = "Sorry, I didn't quite catch that. Could you say it again?"

	retryPrompt = "I hit a snag putting that together. Send anything and I'll try again."

	lookupSystemPrompt = `You are an audience building assistant for retail media.
The user's product has been found and similar variants were grouped by buyer
category and product category. Confirm the product warmly and summarise the
variants, naming the unique buyer categories and product categories. Do not
greet the user again. Respond as the assistant.`

	summarySystemPrompt = `You are summarising a completed media brief.
Provide a concise summary highlighting the key information. Do not greet the
user. Respond as the assistant.`
)

// greet fires the greeting exactly once per session. The explicit FirstTurn
// flag keeps it idempotent under reconnection: a resumed session skips the
// greeting and routes per configuration.
func (m *Machine) greet(ctx context.Context, s domain.State) (domain.State, error) {
	if !s.FirstTurn {
		out := s.Clone()
		if m.resume == config.ResumeTerminal {
			out.CurrentNode = domain.NodeTerminal
		} else {
			out.CurrentNode = domain.NodeIdentifySubject
		}
		return out, nil
	}

	text, err := m.client.Generate(ctx, greetSystemPrompt, "")
	if err != nil {
		// The session must never open with a dead turn; fall back to the
		// canned greeting rather than re-prompting a user who said nothing.
		m.logger.Warn("greeting generation failed, using fallback", "error", err)
		text = fallbackGreeting
	}

	out := s.AppendMessage(domain.RoleAssistant, text)
	out.FirstTurn = false
	out.CurrentNode = domain.NodeIdentifySubject
	return out, nil
}

// identifySubject extracts the product the user wants audiences for.
func (m *Machine) identifySubject(ctx context.Context, s domain.State) (domain.State, error) {
	lastUser := s.LastUserMessage()
	if lastUser == "" {
		// Nothing to work with yet; wait for the next turn.
		return s.Clone(), nil
	}

	name, mentioned, err := m.extractor.IdentifyProduct(ctx, lastUser)
	if err != nil {
		err = classify(err)
		if recoverableText(err) {
			m.logger.Warn("product extraction failed, re-prompting", "error", err)
			return s.AppendMessage(domain.RoleAssistant, restatePrompt), nil
		}
		return s, err
	}
	if !mentioned {
		return s.AppendMessage(domain.RoleAssistant, clarifyProduct), nil
	}

	out := s.AppendMessage(domain.RoleAssistant, fmt.Sprintf("Got it! You're building audiences for %s.", name))
	out.ProductName = name
	out.CurrentNode = domain.NodeGatherBrief
	return out, nil
}

// gatherBrief merges slots from the latest user message and either asks for
// what is still missing or advances once the brief is complete.
func (m *Machine) gatherBrief(ctx context.Context, s domain.State) (domain.State, error) {
	out := s.Clone()

	if lastUser := s.LastUserMessage(); lastUser != "" {
		updated, err := m.extractor.ExtractSlots(ctx, lastUser, s.Brief)
		if err != nil {
			err = classify(err)
			if recoverableText(err) {
				// Re-prompt without consuming slot progress.
				m.logger.Warn("slot extraction failed, re-prompting", "error", err)
				return s.AppendMessage(domain.RoleAssistant, restatePrompt), nil
			}
			return s, err
		}
		out.Brief = updated
	}

	if out.Brief.Complete() {
		done := out.AppendMessage(domain.RoleAssistant,
			fmt.Sprintf("Thanks — that's everything I need for the %s brief. Let me check the catalog.", out.ProductName))
		done.CurrentNode = domain.NodeLookupCatalog
		return done, nil
	}

	return out.AppendMessage(domain.RoleAssistant, missingFieldsPrompt(out.ProductName, out.Brief)), nil
}

// missingFieldsPrompt enumerates unset slots in declared schema order so the
// re-prompt is deterministic.
func missingFieldsPrompt(productName string, b domain.Brief) string {
	missing := b.Missing()
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}

	var sb strings.Builder
	if productName != "" {
		fmt.Fprintf(&sb, "To build the brief for %s, ", productName)
	} else {
		sb.WriteString("To build your brief, ")
	}
	fmt.Fprintf(&sb, "I still need: %s.", strings.Join(names, ", "))
	return sb.String()
}

// lookupCatalog queries the catalog, aggregates the results, and stages the
// category table for at-most-once delivery.
func (m *Machine) lookupCatalog(ctx context.Context, s domain.State) (domain.State, error) {
	records, err := m.lookup.Query(ctx, s.ProductName)
	if err != nil {
		err = classify(err)
		if recoverableCatalog(err) {
			m.logger.Info("catalog lookup failed, ending conversation", "product", s.ProductName, "error", err)
			return m.apologize(s), nil
		}
		return s, err
	}

	result := catalog.Aggregate(s.ProductName, records)
	if result.TotalResults == 0 {
		// Everything the collaborator returned carried the sentinel.
		return m.apologize(s), nil
	}

	text, err := m.client.Generate(ctx, lookupSystemPrompt, describeResult(result))
	if err != nil {
		err = classify(err)
		if recoverableText(err) {
			m.logger.Warn("lookup confirmation generation failed, re-prompting", "error", err)
			return s.AppendMessage(domain.RoleAssistant, retryPrompt), nil
		}
		return s, err
	}

	out := s.AppendMessage(domain.RoleAssistant, text)
	cached := result.Clone()
	pending := result.Clone()
	out.SearchResult = &cached
	out.PendingTable = &pending
	out.CurrentNode = domain.NodeSummarize
	return out, nil
}

func (m *Machine) apologize(s domain.State) domain.State {
	out := s.AppendMessage(domain.RoleAssistant,
		fmt.Sprintf("Sorry — I couldn't find %q in our catalog. Feel free to start a new session with a different product.", s.ProductName))
	out.CurrentNode = domain.NodeTerminal
	return out
}

func describeResult(r domain.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s\nTotal matching variants: %d\n", r.Query, r.TotalResults)
	fmt.Fprintf(&sb, "Buyer categories: %s\n", strings.Join(r.UniqueBuyerCategories, ", "))
	fmt.Fprintf(&sb, "Product categories: %s\n", strings.Join(r.UniqueProductCategories, ", "))
	for _, agg := range r.Aggregates {
		fmt.Fprintf(&sb, "- %s > %s: %d variants\n", agg.BuyerCategory, agg.ProductCategory, agg.Count)
	}
	return sb.String()
}

// summarize produces the final brief summary and ends the conversation.
func (m *Machine) summarize(ctx context.Context, s domain.State) (domain.State, error) {
	text, err := m.client.Generate(ctx, summarySystemPrompt, describeBrief(s))
	if err != nil {
		err = classify(err)
		if recoverableText(err) {
			m.logger.Warn("summary generation failed, re-prompting", "error", err)
			return s.AppendMessage(domain.RoleAssistant, retryPrompt), nil
		}
		return s, err
	}

	out := s.AppendMessage(domain.RoleAssistant,
		fmt.Sprintf("Thank you! I've collected everything for your media brief. Here's a summary:\n\n%s", text))
	out.CurrentNode = domain.NodeTerminal
	return out, nil
}

func describeBrief(s domain.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s\n", s.ProductName)

	selections := "None"
	if len(s.Selections) > 0 {
		parts := make([]string, len(s.Selections))
		for i, sel := range s.Selections {
			parts[i] = fmt.Sprintf("%s > %s", sel.BuyerCategory, sel.ProductCategory)
		}
		selections = strings.Join(parts, ", ")
	}
	fmt.Fprintf(&sb, "Selected categories: %s\n", selections)

	for _, f := range domain.BriefFields {
		fmt.Fprintf(&sb, "%s: %s\n", f, s.Brief[f])
	}
	if s.SearchResult != nil {
		fmt.Fprintf(&sb, "Catalog variants found: %d\n", s.SearchResult.TotalResults)
	}
	return sb.String()
}
