package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID_PrefixedAndUnique(t *testing.T) {
	a := GenerateID("run")
	b := GenerateID("run")

	assert.True(t, strings.HasPrefix(a, "run-"))
	assert.NotEqual(t, a, b)
}

func TestNewContext_ZeroedCollections(t *testing.T) {
	ctx := NewContext("run-1")

	assert.Equal(t, "run-1", ctx.RunID)
	assert.NotNil(t, ctx.SkipStages)
	assert.NotNil(t, ctx.LLMUsage)
	assert.NotNil(t, ctx.StageTimings)
	assert.Empty(t, ctx.Diagnostics)
	assert.False(t, ctx.IsSkipped("strategy"))
}

func TestContext_RecordUsage_Accumulates(t *testing.T) {
	ctx := NewContext("run-1")

	ctx.RecordUsage("strategy", TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	ctx.RecordUsage("strategy", TokenUsage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4})

	got := ctx.LLMUsage["strategy"]
	require.Equal(t, 13, got.PromptTokens)
	require.Equal(t, 6, got.CompletionTokens)
	require.Equal(t, 19, got.TotalTokens)
}

func TestContext_RecordStageTiming(t *testing.T) {
	ctx := NewContext("run-1")
	ctx.RecordStageTiming("strategy", 2*time.Second)
	assert.Equal(t, 2*time.Second, ctx.StageTimings["strategy"])
}

func TestContext_AddDiagnostic(t *testing.T) {
	ctx := NewContext("run-1")
	ctx.AddDiagnostic(Diagnostic{Stage: "image_assessment", Kind: "optional_failure", Message: "metrics unavailable"})
	require.Len(t, ctx.Diagnostics, 1)
	assert.Equal(t, "image_assessment", ctx.Diagnostics[0].Stage)
}

func TestContext_IsSkipped(t *testing.T) {
	ctx := NewContext("run-1")
	ctx.SkipStages["image_eval"] = true
	assert.True(t, ctx.IsSkipped("image_eval"))
	assert.False(t, ctx.IsSkipped("strategy"))
}

func TestOverrides_HasPromptOverride(t *testing.T) {
	var nilOverrides *Overrides
	assert.False(t, nilOverrides.HasPromptOverride())

	empty := &Overrides{}
	assert.False(t, empty.HasPromptOverride())

	set := &Overrides{Prompt: "make it blue"}
	assert.True(t, set.HasPromptOverride())
}
