package interfaces

import (
	"context"
)

// LLMService defines the narrow language-model contract the matching
// engine depends on. Implementations are expected to be safe for
// concurrent use and to rate-limit and retry internally.
type LLMService interface {
	// Generate produces a completion for a plain-text prompt. The model id
	// is opaque to the caller; empty selects the provider default.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - prompt: Plain-text prompt
	//   - model: Opaque model identifier
	//
	// Returns:
	//   - string: Raw response text
	//   - error: Error if generation fails
	Generate(ctx context.Context, prompt string, model string) (string, error)

	// HealthCheck verifies the service is operational.
	HealthCheck(ctx context.Context) error

	// Close releases resources and performs cleanup operations.
	Close() error
}
