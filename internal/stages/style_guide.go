package stages

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// StyleGuide implements the Style Guide stage: one LLM call per strategy,
// fanned out with an all-settled join so one failure does not cancel the
// others.
type StyleGuide struct {
	Cfg Config
}

func (s *StyleGuide) Run(ctx context.Context, pctx *pipeline.Context) error {
	n := len(pctx.SuggestedMarketingStrategies)
	results := make([]pipeline.StyleGuidance, n)
	errs := make([]error, n)

	g, gCtx := errgroup.WithContext(ctx)
	for i, strat := range pctx.SuggestedMarketingStrategies {
		i, strat := i, strat
		g.Go(func() error {
			return s.Cfg.Pool.Do(gCtx, func() error {
				guidance, err := s.oneGuidance(gCtx, pctx, strat)
				if err != nil {
					errs[i] = err
					return nil
				}
				results[i] = guidance
				return nil
			})
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return &pipeline.ProviderError{Provider: s.Cfg.Text.Name(), Err: fmt.Errorf("style_guide[%d]: %w", i, err)}
		}
	}

	pctx.StyleGuidanceSets = results
	return nil
}

func (s *StyleGuide) oneGuidance(ctx context.Context, pctx *pipeline.Context, strat pipeline.StrategyRecord) (pipeline.StyleGuidance, error) {
	userPrompt := fmt.Sprintf("Audience: %s\nObjective: %s\nVoice: %s\n", strat.TargetAudience, strat.TargetObjective, strat.TargetVoice)
	if pctx.BrandKit != nil {
		userPrompt += fmt.Sprintf("Brand colors (strict constraint): %v\nBrand voice: %s\n", pctx.BrandKit.Colors, pctx.BrandKit.BrandVoiceDescription)
		if pctx.BrandKit.LogoAnalysis != nil && len(pctx.BrandKit.LogoAnalysis.DominantColors) > 0 {
			userPrompt += fmt.Sprintf("Logo dominant colors (palette-harmony constraint): %v\n", pctx.BrandKit.LogoAnalysis.DominantColors)
		}
	}

	var guidance pipeline.StyleGuidance
	err := llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Text.Complete(ctx, prompts.StyleGuideSystemPrompt, userPrompt)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage("style_guide", pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &guidance)
	})
	return guidance, err
}
