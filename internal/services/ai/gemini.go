// -----------------------------------------------------------------------
// Gemini Provider - Google genai API behind the Provider interface
// -----------------------------------------------------------------------

package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements Provider over the Google genai SDK.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider from config.
func NewGeminiProvider(ctx context.Context, cfg common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required (set GEMINI_API_KEY or gemini.api_key)")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize genai client: %w", err)
	}

	logger.Debug().
		Str(common.FieldCategory, common.CategoryAI).
		Str("provider", ProviderGemini).
		Str("model", model).
		Dur("timeout", timeout).
		Msg("Gemini provider initialized")

	return &GeminiProvider{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Complete sends a single-turn prompt and returns the first candidate's
// text parts.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(timeoutCtx, p.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}

	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					out.WriteString(part.Text)
				}
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text content")
	}

	p.logger.Debug().
		Str(common.FieldCategory, common.CategoryAI).
		Str(common.FieldAction, common.ActionRequest).
		Str("provider", ProviderGemini).
		Int("response_length", out.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Gemini completion finished")
	return out.String(), nil
}
