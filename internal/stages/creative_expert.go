package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// CreativeExpert implements the Creative Expert stage: one structured
// visual_concept call per (strategy, style_guidance) pair, fanned out.
type CreativeExpert struct {
	Cfg Config
}

var quotedText = regexp.MustCompile(`"([^"]+)"`)

func (s *CreativeExpert) Run(ctx context.Context, pctx *pipeline.Context) error {
	n := len(pctx.SuggestedMarketingStrategies)
	results := make([]pipeline.GeneratedPrompt, n)
	errs := make([]error, n)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return s.Cfg.Pool.Do(gCtx, func() error {
				concept, err := s.oneConcept(gCtx, pctx, i)
				if err != nil {
					errs[i] = err
					return nil
				}
				results[i] = pipeline.GeneratedPrompt{SourceStrategyIndex: i, VisualConcept: concept}
				return nil
			})
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return &pipeline.ProviderError{Provider: s.Cfg.Text.Name(), Err: fmt.Errorf("creative_expert[%d]: %w", i, err)}
		}
	}

	pctx.GeneratedImagePrompts = results
	return nil
}

func (s *CreativeExpert) oneConcept(ctx context.Context, pctx *pipeline.Context, i int) (pipeline.VisualConcept, error) {
	strat := pctx.SuggestedMarketingStrategies[i]
	guidance := pctx.StyleGuidanceSets[i]

	var userPrompt strings.Builder
	fmt.Fprintf(&userPrompt, "Audience: %s\nObjective: %s\n", strat.TargetAudience, strat.TargetObjective)
	fmt.Fprintf(&userPrompt, "Style: %s\nStyle rationale: %s\nKeywords: %v\n", guidance.StyleDescription, guidance.StyleRationale, guidance.StyleKeywords)

	preservingSubject := pctx.ImageReference != nil && pctx.ImageAnalysisResult != nil && pctx.ImageReference.Instruction == ""
	if preservingSubject {
		userPrompt.WriteString("Preserve the existing image's subject; omit main_subject.\n")
	}

	var literalText []string
	if pctx.RenderText {
		literal, guidance := splitLiteralDirective(pctx.TaskDescription)
		literalText = literal
		fmt.Fprintf(&userPrompt, "render_text is true. Literal on-image text (must appear verbatim): %v\nStylistic guidance for promotional_text_visuals: %s\n", literal, guidance)
	}
	if pctx.ApplyBranding && pctx.BrandKit != nil {
		fmt.Fprintf(&userPrompt, "apply_branding is true. Brand colors: %v. Brand voice: %s. Describe concrete placement/scale/contrast for branding_visuals.\n", pctx.BrandKit.Colors, pctx.BrandKit.BrandVoiceDescription)
		if pctx.BrandKit.LogoAnalysis != nil {
			fmt.Fprintf(&userPrompt, "Logo style: %s\n", pctx.BrandKit.LogoAnalysis.LogoStyle)
		}
	}

	var concept pipeline.VisualConcept
	err := llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Text.Complete(ctx, prompts.CreativeExpertSystemPrompt, userPrompt.String())
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage(fmt.Sprintf("creative_expert:%d", i), pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &concept)
	})
	concept.HasLiteralText = len(literalText) > 0
	return concept, err
}

// splitLiteralDirective separates double-quoted literal on-image text from
// the remaining stylistic/content guidance in a task description.
func splitLiteralDirective(taskDescription string) (literal []string, guidance string) {
	matches := quotedText.FindAllStringSubmatch(taskDescription, -1)
	for _, m := range matches {
		literal = append(literal, m[1])
	}
	guidance = quotedText.ReplaceAllString(taskDescription, "")
	return literal, strings.TrimSpace(guidance)
}
