package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// Strategy implements the Strategy stage: a niche-identification call
// followed by strategy composition, with a deterministic keyword-derived
// fallback when the LLM call fails.
type Strategy struct {
	Cfg Config
}

func (s *Strategy) Run(ctx context.Context, pctx *pipeline.Context) error {
	niche, err := s.identifyNiche(ctx, pctx)
	if err != nil {
		niche = fallbackNiche(pctx.Prompt, pctx.TaskDescription)
	}

	strategies, err := s.composeStrategies(ctx, pctx, niche)
	if err != nil {
		pctx.AddDiagnostic(pipeline.Diagnostic{
			Stage:   "strategy",
			Kind:    "degraded_strategy",
			Message: err.Error(),
		})
		strategies = fallbackStrategies(pctx.NumVariants, niche)
	}

	pctx.SuggestedMarketingStrategies = strategies
	return nil
}

func (s *Strategy) identifyNiche(ctx context.Context, pctx *pipeline.Context) (string, error) {
	var text string
	err := llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		out, usage, callErr := s.Cfg.Text.Complete(ctx, prompts.NicheSystemPrompt, pctx.Prompt+" "+pctx.TaskDescription)
		if callErr != nil {
			return callErr
		}
		text = out
		pctx.RecordUsage("strategy:niche", pipeline.TokenUsage(usage))
		return nil
	})
	return strings.TrimSpace(text), err
}

func (s *Strategy) composeStrategies(ctx context.Context, pctx *pipeline.Context, niche string) ([]pipeline.StrategyRecord, error) {
	var strategies []pipeline.StrategyRecord
	err := llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		userPrompt := fmt.Sprintf("Niche: %s\nBrief: %s\n%s", niche, pctx.Prompt, pctx.TaskDescription)
		text, usage, callErr := s.Cfg.Text.Complete(ctx, prompts.StrategySystemPrompt(pctx.NumVariants), userPrompt)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage("strategy", pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &strategies)
	})
	if err != nil {
		return nil, err
	}
	if len(strategies) != pctx.NumVariants {
		return nil, fmt.Errorf("strategy call returned %d strategies, want %d", len(strategies), pctx.NumVariants)
	}
	return strategies, nil
}

// nichePools is the deterministic keyword-derived fallback used when the
// strategy LLM call fails outright.
var nichePools = map[string][]pipeline.StrategyRecord{
	"food": {
		{TargetAudience: "food enthusiasts", TargetObjective: "drive foot traffic"},
		{TargetAudience: "local families", TargetObjective: "build brand familiarity"},
	},
	"fashion": {
		{TargetAudience: "style-conscious shoppers", TargetObjective: "drive online sales"},
		{TargetAudience: "trend followers", TargetObjective: "grow social following"},
	},
	"default": {
		{TargetAudience: "general consumers", TargetObjective: "increase brand awareness"},
		{TargetAudience: "existing customers", TargetObjective: "drive repeat engagement"},
	},
}

func fallbackNiche(prompt, taskDescription string) string {
	text := strings.ToLower(prompt + " " + taskDescription)
	switch {
	case strings.Contains(text, "coffee") || strings.Contains(text, "food") || strings.Contains(text, "latte") || strings.Contains(text, "muffin"):
		return "food"
	case strings.Contains(text, "fashion") || strings.Contains(text, "apparel") || strings.Contains(text, "clothing"):
		return "fashion"
	default:
		return "default"
	}
}

func fallbackStrategies(n int, niche string) []pipeline.StrategyRecord {
	pool, ok := nichePools[niche]
	if !ok {
		pool = nichePools["default"]
	}
	out := make([]pipeline.StrategyRecord, n)
	for i := range out {
		out[i] = pool[i%len(pool)]
	}
	return out
}
