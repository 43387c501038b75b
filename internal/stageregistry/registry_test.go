package stageregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/creativeflow/internal/pipeline"
)

func TestStage_CheckRequired_MissingInput(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.NumVariants = 2

	var styleGuide Stage
	for _, s := range Default {
		if s.Name == "style_guide" {
			styleGuide = s
		}
	}
	require.Equal(t, "style_guide", styleGuide.Name)

	err := styleGuide.CheckRequired(ctx)
	require.NotNil(t, err)
	assert.Equal(t, "style_guide", err.Stage)
}

func TestStage_CheckRequired_Satisfied(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.NumVariants = 2
	ctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{{}, {}}

	var styleGuide Stage
	for _, s := range Default {
		if s.Name == "style_guide" {
			styleGuide = s
		}
	}
	assert.Nil(t, styleGuide.CheckRequired(ctx))
}

func TestStage_CheckProduced_CountMismatch(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.NumVariants = 3
	ctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{{}} // only 1, want 3

	var strategy Stage
	for _, s := range Default {
		if s.Name == "strategy" {
			strategy = s
		}
	}
	err := strategy.CheckProduced(ctx)
	require.NotNil(t, err)
	assert.Equal(t, "strategy", err.Stage)
}

func TestStage_CheckProduced_Satisfied(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.NumVariants = 1
	ctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{{}}

	var strategy Stage
	for _, s := range Default {
		if s.Name == "strategy" {
			strategy = s
		}
	}
	assert.Nil(t, strategy.CheckProduced(ctx))
}

func TestNeedsStyleAdaptation_NotStyleRecipe(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.PresetType = pipeline.PresetInputTemplate
	assert.False(t, NeedsStyleAdaptation(ctx))
}

func TestNeedsStyleAdaptation_PromptOverride(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.PresetType = pipeline.PresetStyleRecipe
	ctx.Overrides = &pipeline.Overrides{Prompt: "make it bolder"}
	assert.True(t, NeedsStyleAdaptation(ctx))
}

func TestNeedsStyleAdaptation_FreshImageAnalysis(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.PresetType = pipeline.PresetStyleRecipe
	ctx.ImageAnalysisResult = &pipeline.ImageAnalysisResult{MainSubject: "sneaker"}
	assert.True(t, NeedsStyleAdaptation(ctx))
}

func TestNeedsStyleAdaptation_NeitherConditionFalse(t *testing.T) {
	ctx := pipeline.NewContext("run-1")
	ctx.PresetType = pipeline.PresetStyleRecipe
	ctx.Overrides = &pipeline.Overrides{}
	assert.False(t, NeedsStyleAdaptation(ctx))
}

func TestDefault_OrderAndNames(t *testing.T) {
	want := []string{
		"image_eval", "strategy", "style_guide", "creative_expert",
		"prompt_assembly", "image_generation", "image_assessment",
	}
	require.Len(t, Default, len(want))
	for i, name := range want {
		assert.Equal(t, name, Default[i].Name)
	}
}
