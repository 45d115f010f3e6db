// Package llm provides the client for the text-understanding and generation
// collaborator.
package llm

import (
	"context"
	"errors"
)

// ErrMalformedOutput indicates the collaborator returned output that could
// not be parsed into the requested structured shape.
var ErrMalformedOutput = errors.New("llm: malformed structured output")

// Client defines the interface for the text collaborator.
// This interface is implemented by the OpenAI-compatible HTTP client.
type Client interface {
	// Generate produces free text for the given system and user prompts.
	Generate(ctx context.Context, system, user string) (string, error)

	// GenerateJSON asks for strict JSON output and unmarshals it into out.
	// A response that cannot be decoded yields ErrMalformedOutput.
	GenerateJSON(ctx context.Context, system, user string, out any) error

	// Close releases resources.
	Close()
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
