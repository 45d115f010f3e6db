// Package brief implements structured slot extraction over the text
// collaborator: product identification and the running marketing brief.
package brief

import (
	"context"
	"fmt"
	"strings"

	"github.com/whizzbang/audience-builder/internal/domain"
	"github.com/whizzbang/audience-builder/internal/llm"
)

// Extractor pulls structured fields out of free-text user messages.
type Extractor struct {
	client llm.Client
}

// NewExtractor creates an extractor backed by the given text collaborator.
func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{client: client}
}

const slotSystemPrompt = `Extract marketing brief fields from the user's message.
Respond with a JSON object containing exactly these keys:
"objectives", "budget", "channel", "duration".
Each value is the string explicitly mentioned by the user, or null when the
message does not mention that field. Never guess; never return empty strings.`

// slotExtraction mirrors the collaborator's structured-output contract: a
// null field means "not mentioned", which must stay distinguishable from an
// empty value.
type slotExtraction struct {
	Objectives *string `json:"objectives"`
	Budget     *string `json:"budget"`
	Channel    *string `json:"channel"`
	Duration   *string `json:"duration"`
}

// ExtractSlots merges fields found in lastUserMessage into known and returns
// the updated brief. Fields absent from the message keep their known value,
// so a filled slot is never cleared by a turn that fails to restate it.
func (e *Extractor) ExtractSlots(ctx context.Context, lastUserMessage string, known domain.Brief) (domain.Brief, error) {
	user := fmt.Sprintf("User message: %s", lastUserMessage)

	var extracted slotExtraction
	if err := e.client.GenerateJSON(ctx, slotSystemPrompt, user, &extracted); err != nil {
		return known, fmt.Errorf("extract brief slots: %w", err)
	}

	update := map[domain.Field]*string{
		domain.FieldObjectives: clean(extracted.Objectives),
		domain.FieldBudget:     clean(extracted.Budget),
		domain.FieldChannel:    clean(extracted.Channel),
		domain.FieldDuration:   clean(extracted.Duration),
	}
	return known.Merge(update), nil
}

const productSystemPrompt = `Extract the product the user wants to build audiences for.
Respond with a JSON object of the shape:
{"mentioned": <bool>, "product_name": <string or null>}
Set "mentioned" to false and "product_name" to null when no product appears
in the message.`

type productIdentification struct {
	Mentioned   bool    `json:"mentioned"`
	ProductName *string `json:"product_name"`
}

// IdentifyProduct extracts the product name from a user message. The second
// return value is false when the message names no product.
func (e *Extractor) IdentifyProduct(ctx context.Context, lastUserMessage string) (string, bool, error) {
	user := fmt.Sprintf("User message: %s", lastUserMessage)

	var ident productIdentification
	if err := e.client.GenerateJSON(ctx, productSystemPrompt, user, &ident); err != nil {
		return "", false, fmt.Errorf("identify product: %w", err)
	}

	name := clean(ident.ProductName)
	if !ident.Mentioned || name == nil {
		return "", false, nil
	}
	return *name, true, nil
}

// clean normalizes collaborator values: whitespace-only strings and the
// literal "null" collapse to the missing sentinel.
func clean(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return nil
	}
	return &trimmed
}
