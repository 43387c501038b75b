package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/creativeflow/internal/executor"
	"github.com/soochol/creativeflow/internal/pipeline"
)

func TestCreativeExpert_Run_OneConceptPerStrategy(t *testing.T) {
	concept := pipeline.VisualConcept{MainSubject: "sneaker", ColorPalette: "red and white"}
	text := &fakeText{responses: []string{mustJSON(concept)}}
	s := &CreativeExpert{Cfg: Config{Text: text, Pool: executor.NewWorkerPool(4), Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{{TargetAudience: "a"}, {TargetAudience: "b"}}
	pctx.StyleGuidanceSets = []pipeline.StyleGuidance{{StyleDescription: "bold"}, {StyleDescription: "soft"}}

	require.NoError(t, s.Run(context.Background(), pctx))
	require.Len(t, pctx.GeneratedImagePrompts, 2)
	assert.Equal(t, 0, pctx.GeneratedImagePrompts[0].SourceStrategyIndex)
	assert.Equal(t, 1, pctx.GeneratedImagePrompts[1].SourceStrategyIndex)
}

func TestCreativeExpert_Run_QuotedTaskDescriptionMarksLiteralText(t *testing.T) {
	concept := pipeline.VisualConcept{MainSubject: "sneaker", PromotionalTextVisuals: `50% OFF`}
	text := &fakeText{responses: []string{mustJSON(concept)}}
	s := &CreativeExpert{Cfg: Config{Text: text, Pool: executor.NewWorkerPool(4), Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.RenderText = true
	pctx.TaskDescription = `Use "50% OFF" in bold, modern style`
	pctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{{TargetAudience: "a"}}
	pctx.StyleGuidanceSets = []pipeline.StyleGuidance{{StyleDescription: "bold"}}

	require.NoError(t, s.Run(context.Background(), pctx))
	require.Len(t, pctx.GeneratedImagePrompts, 1)
	assert.True(t, pctx.GeneratedImagePrompts[0].VisualConcept.HasLiteralText)
}

func TestCreativeExpert_Run_EmptyTaskDescriptionWithRenderTextIsGenerated(t *testing.T) {
	concept := pipeline.VisualConcept{MainSubject: "sneaker", PromotionalTextVisuals: "bold weekend sale messaging"}
	text := &fakeText{responses: []string{mustJSON(concept)}}
	s := &CreativeExpert{Cfg: Config{Text: text, Pool: executor.NewWorkerPool(4), Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.RenderText = true
	pctx.TaskDescription = ""
	pctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{{TargetAudience: "a"}}
	pctx.StyleGuidanceSets = []pipeline.StyleGuidance{{StyleDescription: "bold"}}

	require.NoError(t, s.Run(context.Background(), pctx))
	require.Len(t, pctx.GeneratedImagePrompts, 1)
	assert.False(t, pctx.GeneratedImagePrompts[0].VisualConcept.HasLiteralText)
}

func TestSplitLiteralDirective_ExtractsQuotedText(t *testing.T) {
	literal, guidance := splitLiteralDirective(`Use "50% OFF" in bold, modern style`)
	assert.Equal(t, []string{"50% OFF"}, literal)
	assert.Equal(t, "Use  in bold, modern style", guidance)
}

func TestSplitLiteralDirective_NoQuotesReturnsFullGuidance(t *testing.T) {
	literal, guidance := splitLiteralDirective("keep it minimal")
	assert.Empty(t, literal)
	assert.Equal(t, "keep it minimal", guidance)
}

func TestCreativeExpert_Run_PropagatesFailureAsProviderError(t *testing.T) {
	text := &fakeText{responses: []string{"not json"}}
	s := &CreativeExpert{Cfg: Config{Text: text, Pool: executor.NewWorkerPool(1), Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{{TargetAudience: "a"}}
	pctx.StyleGuidanceSets = []pipeline.StyleGuidance{{StyleDescription: "bold"}}

	err := s.Run(context.Background(), pctx)
	var perr *pipeline.ProviderError
	require.ErrorAs(t, err, &perr)
}
