// -----------------------------------------------------------------------
// AI Service - typed LLM tasks over per-task provider fallback chains
// -----------------------------------------------------------------------

package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Task temperatures. Extraction and recovery want near-deterministic output;
// analysis benefits from some variation.
const (
	tempExtraction = 0.2
	tempAnalysis   = 0.6
	tempCompany    = 0.3
	tempRecovery   = 0.2
	tempClassify   = 0.1
)

const defaultMaxTokens = 4096

// defaultChains is the fallback when the AI settings document is missing or
// has no chain for a task. Matches the seeded settings defaults.
var defaultChains = map[string][]string{
	models.AITaskExtraction: {ProviderClaude, ProviderGemini},
	models.AITaskAnalysis:   {ProviderClaude, ProviderGemini},
	models.AITaskCompany:    {ProviderGemini, ProviderClaude},
	models.AITaskRecovery:   {ProviderClaude},
	models.AITaskClassify:   {ProviderGemini, ProviderClaude},
}

// Service implements the typed LLM tasks. Each task resolves its provider
// chain from the AI settings document and walks it in order; rate-limited
// calls retry with backoff before the chain advances.
type Service struct {
	providers map[string]Provider
	settings  interfaces.SettingsService
	retry     RetryConfig
	logger    arbor.ILogger
}

var _ interfaces.AIService = (*Service)(nil)

// NewService registers the given providers. Providers may be a subset of the
// configured chains; chain entries without a registered provider are skipped.
func NewService(settings interfaces.SettingsService, logger arbor.ILogger, providers ...Provider) *Service {
	registry := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		registry[p.Name()] = p
	}
	return &Service{
		providers: registry,
		settings:  settings,
		retry:     defaultRetryConfig(),
		logger:    logger,
	}
}

// Providers returns the registered provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// chainFor resolves the provider chain for a task from settings, falling
// back to the built-in defaults.
func (s *Service) chainFor(ctx context.Context, task string) []string {
	if s.settings != nil {
		if aiSettings, err := s.settings.AISettings(ctx); err == nil && aiSettings != nil {
			if chain, ok := aiSettings.Chains[task]; ok && len(chain) > 0 {
				return chain
			}
		}
	}
	return defaultChains[task]
}

// newRequest assembles a completion request with the configured token limit.
func (s *Service) newRequest(ctx context.Context, system, prompt string, temperature float64) CompletionRequest {
	maxTokens := defaultMaxTokens
	if s.settings != nil {
		if aiSettings, err := s.settings.AISettings(ctx); err == nil && aiSettings != nil && aiSettings.MaxTokens > 0 {
			maxTokens = aiSettings.MaxTokens
		}
	}
	return CompletionRequest{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// completeTask walks the task's provider chain until one completion
// succeeds. Rate-limit errors retry on the same provider with backoff; other
// errors advance the chain.
func (s *Service) completeTask(ctx context.Context, task string, req CompletionRequest) (string, error) {
	chain := s.chainFor(ctx, task)
	if len(chain) == 0 {
		return "", fmt.Errorf("no provider chain configured for task %q", task)
	}

	var lastErr error
	attempted := 0
	for _, name := range chain {
		provider, ok := s.providers[name]
		if !ok {
			s.logger.Warn().
				Str(common.FieldCategory, common.CategoryAI).
				Str("task", task).
				Str("provider", name).
				Msg("Provider in chain is not registered, skipping")
			continue
		}
		attempted++

		text, err := s.completeWithRetry(ctx, provider, task, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("task %q cancelled: %w", task, lastErr)
		}

		s.logger.Warn().
			Str(common.FieldCategory, common.CategoryAI).
			Str(common.FieldAction, common.ActionFallback).
			Str("task", task).
			Str("provider", name).
			Err(err).
			Msg("Provider failed, advancing chain")
	}

	if attempted == 0 {
		return "", fmt.Errorf("no registered provider for task %q (chain: %s)", task, strings.Join(chain, ", "))
	}
	return "", fmt.Errorf("all providers failed for task %q: %w", task, lastErr)
}

// completeWithRetry runs one provider, retrying only rate-limit errors.
func (s *Service) completeWithRetry(ctx context.Context, provider Provider, task string, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		start := time.Now()
		text, err := provider.Complete(ctx, req)
		if err == nil {
			s.logger.Debug().
				Str(common.FieldCategory, common.CategoryAI).
				Str(common.FieldAction, common.ActionRequest).
				Str("task", task).
				Str("provider", provider.Name()).
				Dur("elapsed", time.Since(start)).
				Msg("Task completion succeeded")
			return text, nil
		}
		lastErr = err

		if !isRateLimitError(err) || attempt == s.retry.MaxRetries {
			break
		}

		apiDelay := extractRetryDelay(err)
		backoff := s.retry.calculateBackoff(attempt, apiDelay)
		s.logger.Warn().
			Str(common.FieldCategory, common.CategoryAI).
			Str(common.FieldAction, common.ActionRetry).
			Str("task", task).
			Str("provider", provider.Name()).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Rate limited, backing off")

		if err := sleepWithContext(ctx, backoff); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// ExtractJob extracts structured fields from a scraped job record.
func (s *Service) ExtractJob(ctx context.Context, job models.JobRecord) (*models.JobExtraction, error) {
	req := s.newRequest(ctx, extractionSystem, buildExtractionPrompt(job), tempExtraction)
	text, err := s.completeTask(ctx, models.AITaskExtraction, req)
	if err != nil {
		return nil, err
	}
	extraction, err := parseExtraction(text)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return extraction, nil
}

// RepairExtraction re-runs extraction focused on the missing fields and
// merges the result into current. Confidence never decreases.
func (s *Service) RepairExtraction(ctx context.Context, job models.JobRecord, current *models.JobExtraction) (*models.JobExtraction, error) {
	if current == nil {
		return s.ExtractJob(ctx, job)
	}
	req := s.newRequest(ctx, extractionSystem, buildRepairPrompt(job, current), tempExtraction)
	text, err := s.completeTask(ctx, models.AITaskExtraction, req)
	if err != nil {
		return nil, err
	}
	repair, err := parseExtraction(text)
	if err != nil {
		return nil, fmt.Errorf("parse repair response: %w", err)
	}
	merged := *current
	merged.Merge(*repair)
	return &merged, nil
}

// AnalyzeMatch produces the qualitative analysis for a scored job. The
// numeric score is computed upstream and passed for context only.
func (s *Service) AnalyzeMatch(ctx context.Context, job models.JobRecord, extraction *models.JobExtraction, company *models.Company, score int) (*models.MatchAnalysis, error) {
	var profile *models.ProfileSettings
	if s.settings != nil {
		profile, _ = s.settings.Profile(ctx)
	}
	req := s.newRequest(ctx, analysisSystem, buildAnalysisPrompt(job, extraction, company, score, profile), tempAnalysis)
	text, err := s.completeTask(ctx, models.AITaskAnalysis, req)
	if err != nil {
		return nil, err
	}
	analysis, err := parseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	return analysis, nil
}

// ExtractCompany pulls about/culture/mission/tech-stack fields out of
// fetched website content.
func (s *Service) ExtractCompany(ctx context.Context, companyName, websiteContent string) (*models.Company, error) {
	if strings.TrimSpace(websiteContent) == "" {
		return nil, fmt.Errorf("website content is empty")
	}
	req := s.newRequest(ctx, companySystem, buildCompanyExtractionPrompt(companyName, websiteContent), tempCompany)
	text, err := s.completeTask(ctx, models.AITaskCompany, req)
	if err != nil {
		return nil, err
	}
	company, err := parseCompanyProfile(text)
	if err != nil {
		return nil, fmt.Errorf("parse company response: %w", err)
	}
	company.Name = companyName
	return company, nil
}

// ClassifyCompany assigns tier, priority score, size class, and the Portland
// office flag. The input record is not mutated.
func (s *Service) ClassifyCompany(ctx context.Context, company *models.Company) (*models.Company, error) {
	if company == nil || company.Name == "" {
		return nil, fmt.Errorf("company name is required")
	}
	req := s.newRequest(ctx, companySystem, buildCompanyClassifyPrompt(company), tempClassify)
	text, err := s.completeTask(ctx, models.AITaskClassify, req)
	if err != nil {
		return nil, err
	}
	class, err := parseCompanyClass(text)
	if err != nil {
		return nil, fmt.Errorf("parse classification response: %w", err)
	}

	updated := *company
	updated.Tier = class.Tier
	updated.PriorityScore = class.PriorityScore
	updated.Size = class.Size
	updated.HasPortlandOffice = class.HasPortlandOffice
	return &updated, nil
}

// ProposeSourceConfig suggests a working scraper configuration for a failing
// source from a sample of its page or API payload.
func (s *Service) ProposeSourceConfig(ctx context.Context, source *models.Source, sample string) (*models.SourceProposal, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if strings.TrimSpace(sample) == "" {
		return nil, fmt.Errorf("page sample is empty")
	}
	req := s.newRequest(ctx, recoverySystem, buildSourceProposalPrompt(source, sample), tempRecovery)
	text, err := s.completeTask(ctx, models.AITaskRecovery, req)
	if err != nil {
		return nil, err
	}
	proposal, err := parseProposal(text)
	if err != nil {
		return nil, fmt.Errorf("parse proposal response: %w", err)
	}
	return proposal, nil
}

// ClassifySourceURL categorises a candidate careers URL.
func (s *Service) ClassifySourceURL(ctx context.Context, url, pageText string) (*models.SourceClassification, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("url is required")
	}
	req := s.newRequest(ctx, classifySystem, buildSourceClassifyPrompt(url, pageText), tempClassify)
	text, err := s.completeTask(ctx, models.AITaskClassify, req)
	if err != nil {
		return nil, err
	}
	classification, err := parseClassification(text)
	if err != nil {
		return nil, fmt.Errorf("parse url classification response: %w", err)
	}
	return classification, nil
}
