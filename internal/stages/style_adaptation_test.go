package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/preset"
)

func stylePresetContext() *pipeline.Context {
	pctx := pipeline.NewContext("run-1")
	pctx.PresetType = pipeline.PresetStyleRecipe
	pctx.PresetData = &pipeline.PresetSnapshot{
		VisualConcept: &pipeline.VisualConcept{MainSubject: "sneaker", ColorPalette: "red"},
		Strategy:      &pipeline.StrategyRecord{TargetAudience: "runners"},
		StyleGuidance: &pipeline.StyleGuidance{StyleDescription: "bold"},
		FinalPrompt:   "a red sneaker",
	}
	return pctx
}

func TestStyleAdaptation_Run_MissingPresetDataIsPrecondition(t *testing.T) {
	s := &StyleAdaptation{Cfg: Config{Retry: noRetry()}}
	pctx := pipeline.NewContext("run-1")

	err := s.Run(context.Background(), pctx)
	var precond *pipeline.PreconditionError
	require.ErrorAs(t, err, &precond)
}

func TestStyleAdaptation_Run_BridgesSkippedCreativeBlock(t *testing.T) {
	adapted := pipeline.VisualConcept{MainSubject: "sneaker", ColorPalette: "blue"}
	text := &fakeText{responses: []string{mustJSON(adapted)}}
	s := &StyleAdaptation{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := stylePresetContext()
	pctx.Overrides = &pipeline.Overrides{Prompt: "make it blue"}

	require.NoError(t, s.Run(context.Background(), pctx))
	require.Len(t, pctx.GeneratedImagePrompts, 1)
	assert.Equal(t, "blue", pctx.GeneratedImagePrompts[0].VisualConcept.ColorPalette)
	require.Len(t, pctx.SuggestedMarketingStrategies, 1)
	require.Len(t, pctx.StyleGuidanceSets, 1)
}

func TestStyleAdaptation_Run_OverridePromptDrivesNewConcept(t *testing.T) {
	var seenPrompt string
	adapted := pipeline.VisualConcept{MainSubject: "blueberry muffin"}
	text := &capturingText{fakeText: fakeText{responses: []string{mustJSON(adapted)}}, captured: &seenPrompt}
	s := &StyleAdaptation{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := stylePresetContext()
	pctx.Overrides = &pipeline.Overrides{Prompt: "a blueberry muffin on a ceramic plate"}

	require.NoError(t, s.Run(context.Background(), pctx))
	assert.Contains(t, seenPrompt, "a blueberry muffin on a ceramic plate")
	assert.Equal(t, "blueberry muffin", pctx.GeneratedImagePrompts[0].VisualConcept.MainSubject)
}

func TestStyleAdaptation_Run_NewImageAnalysisDrivesSubjectWithNoPrompt(t *testing.T) {
	var seenPrompt string
	adapted := pipeline.VisualConcept{MainSubject: "muffin"}
	text := &capturingText{fakeText: fakeText{responses: []string{mustJSON(adapted)}}, captured: &seenPrompt}
	s := &StyleAdaptation{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := stylePresetContext()
	pctx.ImageAnalysisResult = &pipeline.ImageAnalysisResult{MainSubject: "muffin"}

	require.NoError(t, s.Run(context.Background(), pctx))
	assert.Contains(t, seenPrompt, "muffin")
	assert.Equal(t, "muffin", pctx.GeneratedImagePrompts[0].VisualConcept.MainSubject)
}

func TestStyleAdaptation_Run_AppliesOverridesOnTopOfAdapted(t *testing.T) {
	adapted := pipeline.VisualConcept{MainSubject: "sneaker", ColorPalette: "blue"}
	text := &fakeText{responses: []string{mustJSON(adapted)}}
	s := &StyleAdaptation{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := stylePresetContext()
	pctx.Overrides = &pipeline.Overrides{VisualConcept: map[string]any{"color_palette": "emerald green"}}

	require.NoError(t, s.Run(context.Background(), pctx))
	assert.Equal(t, "emerald green", pctx.GeneratedImagePrompts[0].VisualConcept.ColorPalette)
}

func TestStyleAdaptation_Run_ImageReferenceInstructionUsedWithoutOverridePrompt(t *testing.T) {
	var seenPrompt string
	adapted := pipeline.VisualConcept{MainSubject: "sneaker"}
	text := &capturingText{fakeText: fakeText{responses: []string{mustJSON(adapted)}}, captured: &seenPrompt}
	s := &StyleAdaptation{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := stylePresetContext()
	pctx.Prompt = "ignored"
	pctx.ImageReference = &pipeline.ImageReference{Instruction: "make it night time"}

	require.NoError(t, s.Run(context.Background(), pctx))
	assert.Contains(t, seenPrompt, "make it night time")
	assert.NotContains(t, seenPrompt, "ignored")
}

func TestStyleAdaptation_Run_OverridePromptOutranksImageReferenceInstruction(t *testing.T) {
	var seenPrompt string
	adapted := pipeline.VisualConcept{MainSubject: "sneaker"}
	text := &capturingText{fakeText: fakeText{responses: []string{mustJSON(adapted)}}, captured: &seenPrompt}
	s := &StyleAdaptation{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := stylePresetContext()
	pctx.Overrides = &pipeline.Overrides{Prompt: "a new prompt"}
	pctx.ImageReference = &pipeline.ImageReference{Instruction: "make it night time"}

	require.NoError(t, s.Run(context.Background(), pctx))
	assert.Contains(t, seenPrompt, "a new prompt")
	assert.NotContains(t, seenPrompt, "night time")
}

func TestStyleAdaptation_BuildPrompt_PrunesUnderTightBudget(t *testing.T) {
	s := &StyleAdaptation{}
	base := pipeline.VisualConcept{
		CreativeReasoning: strings.Repeat("x", approxContextWindow*4),
		TextureAndDetails: strings.Repeat("y", approxContextWindow*4),
	}
	rationale := strings.Repeat("z", approxContextWindow*4)

	prompt, pruned := s.buildPrompt(base, rationale, "edit", "")
	assert.LessOrEqual(t, len(prompt), pruneThresholdChars+500)
	assert.Contains(t, pruned, "creative_reasoning")
}

func TestStyleAdaptation_BuildPrompt_StyleRationalePruneActuallyShrinksPrompt(t *testing.T) {
	s := &StyleAdaptation{}
	base := pipeline.VisualConcept{}
	rationale := strings.Repeat("z", approxContextWindow*4)

	prompt, pruned := s.buildPrompt(base, rationale, "edit", "")
	assert.LessOrEqual(t, len(prompt), pruneThresholdChars+500)
	assert.Contains(t, pruned, "style_rationale")
	assert.NotContains(t, prompt, "zzzz")
}

func TestMergeRecipeWithOverrides_GroundsOverrideBehavior(t *testing.T) {
	recipe := &preset.StyleRecipe{VisualConcept: pipeline.VisualConcept{ColorPalette: "red"}}
	merged, err := preset.MergeRecipeWithOverrides(recipe, &pipeline.Overrides{VisualConcept: map[string]any{"color_palette": "blue"}})
	require.NoError(t, err)
	assert.Equal(t, "blue", merged.VisualConcept.ColorPalette)
}
