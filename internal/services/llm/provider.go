package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ProviderFactory routes generation requests to Claude or Gemini based on
// the model id, applies per-provider client-side rate limiting, and
// retries transient provider failures internally. It implements
// interfaces.LLMService and is safe for concurrent use.
type ProviderFactory struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	logger       arbor.ILogger

	mu            sync.Mutex // guards lazy client initialization
	geminiClient  *genai.Client
	claudeClient  *anthropic.Client
	geminiLimiter *rate.Limiter
	claudeLimiter *rate.Limiter
	retryConfig   *RetryConfig
}

// NewProviderFactory creates a new provider factory. Clients are created
// lazily on first use so a run that only touches one provider never needs
// the other's API key.
func NewProviderFactory(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	logger arbor.ILogger,
) *ProviderFactory {
	return &ProviderFactory{
		geminiConfig:  geminiConfig,
		claudeConfig:  claudeConfig,
		llmConfig:     llmConfig,
		logger:        logger,
		geminiLimiter: limiterFromInterval(geminiConfig.RateLimit, 4*time.Second),
		claudeLimiter: limiterFromInterval(claudeConfig.RateLimit, time.Second),
		retryConfig:   NewDefaultRetryConfig(),
	}
}

// limiterFromInterval builds a 1-token-per-interval limiter with burst 1.
func limiterFromInterval(interval string, fallback time.Duration) *rate.Limiter {
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		d = fallback
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
//   - "claude-haiku-3-5-20241022" -> Claude
//   - "claude/claude-haiku-3-5-20241022" -> Claude (with prefix)
//   - "gemini-3-flash-preview" -> Gemini
//   - Empty string -> uses default provider from config
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.llmConfig.DefaultProvider)
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(f.llmConfig.DefaultProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// Generate produces a completion for a plain-text prompt using the
// provider selected by the model id.
func (f *ProviderFactory) Generate(ctx context.Context, prompt string, model string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", common.Permanent("llm.generate", fmt.Errorf("prompt cannot be empty"))
	}

	provider := f.DetectProvider(model)
	normalized := f.NormalizeModel(model)

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", normalized).
		Int("prompt_length", len(prompt)).
		Msg("Generating content with provider")

	switch provider {
	case ProviderClaude:
		return f.generateWithClaude(ctx, prompt, normalized)
	default:
		return f.generateWithGemini(ctx, prompt, normalized)
	}
}

// generateWithClaude generates content using the Anthropic API
func (f *ProviderFactory) generateWithClaude(ctx context.Context, prompt, model string) (string, error) {
	f.mu.Lock()
	if f.claudeClient == nil {
		if f.claudeConfig.APIKey == "" {
			f.mu.Unlock()
			return "", common.Fatal("llm.claude", fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key)"))
		}
		client := anthropic.NewClient(option.WithAPIKey(f.claudeConfig.APIKey))
		f.claudeClient = &client
	}
	client := f.claudeClient
	f.mu.Unlock()

	if model == "" {
		model = f.claudeConfig.Model
	}

	maxTokens := f.claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if f.claudeConfig.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(f.claudeConfig.Temperature))
	}

	var resp *anthropic.Message
	err := f.callWithRetry(ctx, f.claudeLimiter, "claude", func(callCtx context.Context) error {
		var apiErr error
		resp, apiErr = client.Messages.New(callCtx, params)
		return apiErr
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", common.Permanent("llm.claude", fmt.Errorf("empty response from Claude API"))
	}

	return text.String(), nil
}

// generateWithGemini generates content using the Gemini API
func (f *ProviderFactory) generateWithGemini(ctx context.Context, prompt, model string) (string, error) {
	f.mu.Lock()
	if f.geminiClient == nil {
		if f.geminiConfig.APIKey == "" {
			f.mu.Unlock()
			return "", common.Fatal("llm.gemini", fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or gemini.api_key)"))
		}
		created, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  f.geminiConfig.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			f.mu.Unlock()
			return "", common.Fatal("llm.gemini", fmt.Errorf("failed to create Gemini client: %w", err))
		}
		f.geminiClient = created
	}
	client := f.geminiClient
	f.mu.Unlock()

	if model == "" {
		model = f.geminiConfig.Model
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(f.geminiConfig.Temperature),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	var resp *genai.GenerateContentResponse
	err := f.callWithRetry(ctx, f.geminiLimiter, "gemini", func(callCtx context.Context) error {
		var apiErr error
		resp, apiErr = client.Models.GenerateContent(callCtx, model, contents, config)
		return apiErr
	})
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", common.Permanent("llm.gemini", fmt.Errorf("empty response from Gemini API"))
	}
	responseText := resp.Text()
	if responseText == "" {
		return "", common.Permanent("llm.gemini", fmt.Errorf("empty text in Gemini response"))
	}

	return responseText, nil
}

// callWithRetry waits on the provider's rate limiter, then runs the call
// with rate-limit-aware backoff on transient failures. Errors that survive
// the retry loop are classified permanent for this request.
func (f *ProviderFactory) callWithRetry(ctx context.Context, limiter *rate.Limiter, provider string, call func(ctx context.Context) error) error {
	var apiErr error

	for attempt := 0; attempt <= f.retryConfig.MaxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		apiErr = call(ctx)
		if apiErr == nil {
			return nil
		}

		if !IsRateLimitError(apiErr) && !IsTransportError(apiErr) {
			return common.Permanent("llm."+provider, apiErr)
		}
		if attempt == f.retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			backoff = f.retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		f.logger.Warn().
			Str("provider", provider).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying LLM API call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return common.Permanent("llm."+provider,
		fmt.Errorf("API call failed after %d retries: %w", f.retryConfig.MaxRetries, apiErr))
}

// HealthCheck verifies the default provider responds to a minimal probe.
func (f *ProviderFactory) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := f.Generate(probeCtx, "ping", "")
	if err != nil {
		return fmt.Errorf("LLM health check failed: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return fmt.Errorf("LLM health check returned empty response")
	}
	return nil
}

// Close closes all provider clients
func (f *ProviderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geminiClient = nil
	f.claudeClient = nil
	return nil
}

var _ interfaces.LLMService = (*ProviderFactory)(nil)
