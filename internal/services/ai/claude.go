// -----------------------------------------------------------------------
// Claude Provider - Anthropic messages API behind the Provider interface
// -----------------------------------------------------------------------

package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// ClaudeProvider implements Provider over the Anthropic SDK.
type ClaudeProvider struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewClaudeProvider creates a Claude provider from config. The API key is
// required; model and timeout take defaults.
func NewClaudeProvider(cfg common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required (set ANTHROPIC_API_KEY or claude.api_key)")
	}
	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	logger.Debug().
		Str(common.FieldCategory, common.CategoryAI).
		Str("provider", ProviderClaude).
		Str("model", model).
		Dur("timeout", timeout).
		Msg("Claude provider initialized")

	return &ClaudeProvider{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (p *ClaudeProvider) Name() string { return ProviderClaude }

// Complete sends a single-turn message and returns the concatenated text
// blocks of the response.
func (p *ClaudeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	resp, err := p.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("claude completion failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.WriteString(b.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("claude returned no text content")
	}

	p.logger.Debug().
		Str(common.FieldCategory, common.CategoryAI).
		Str(common.FieldAction, common.ActionRequest).
		Str("provider", ProviderClaude).
		Int("response_length", out.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Claude completion finished")
	return out.String(), nil
}
