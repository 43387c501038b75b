package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/creativeflow/internal/executor"
	"github.com/soochol/creativeflow/internal/persistence"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/progress"
)

func TestCaption_Run_GeneratesFirstVersion(t *testing.T) {
	store := persistence.NewRunStore(t.TempDir())
	brief := pipeline.CaptionBrief{CoreMessage: "flash sale"}
	text := &fakeText{responses: []string{mustJSON(brief), "50% off everything today!"}}
	s := &Caption{Cfg: Config{Text: text, Store: store, Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.GeneratedImageResults = []pipeline.GeneratedImageResult{{Status: "success"}}

	bus := progress.NewBus("run-1")
	ctx := progress.WithBus(context.Background(), bus)
	ctx = executor.WithPayload(ctx, CaptionRequest{ImageIndex: 0})

	require.NoError(t, s.Run(ctx, pctx))

	v, err := store.LatestCaptionVersion("run-1", "variant_0")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestCaption_Run_MissingPayloadIsPrecondition(t *testing.T) {
	s := &Caption{Cfg: Config{Store: persistence.NewRunStore(t.TempDir()), Retry: noRetry()}}
	pctx := pipeline.NewContext("run-1")

	err := s.Run(context.Background(), pctx)
	var precond *pipeline.PreconditionError
	require.ErrorAs(t, err, &precond)
}

func TestCaption_Run_OutOfRangeIndexIsPrecondition(t *testing.T) {
	s := &Caption{Cfg: Config{Store: persistence.NewRunStore(t.TempDir()), Retry: noRetry()}}
	pctx := pipeline.NewContext("run-1")
	pctx.GeneratedImageResults = []pipeline.GeneratedImageResult{{Status: "success"}}

	ctx := executor.WithPayload(context.Background(), CaptionRequest{ImageIndex: 5})
	err := s.Run(ctx, pctx)
	var precond *pipeline.PreconditionError
	require.ErrorAs(t, err, &precond)
}

func TestCaption_Run_FailedImageIsPrecondition(t *testing.T) {
	s := &Caption{Cfg: Config{Store: persistence.NewRunStore(t.TempDir()), Retry: noRetry()}}
	pctx := pipeline.NewContext("run-1")
	pctx.GeneratedImageResults = []pipeline.GeneratedImageResult{{Status: "failed"}}

	ctx := executor.WithPayload(context.Background(), CaptionRequest{ImageIndex: 0})
	err := s.Run(ctx, pctx)
	var precond *pipeline.PreconditionError
	require.ErrorAs(t, err, &precond)
}

func TestCaption_Run_RegenerateWriterOnlyReusesCachedBrief(t *testing.T) {
	store := persistence.NewRunStore(t.TempDir())
	brief := pipeline.CaptionBrief{CoreMessage: "original"}
	briefJSON := []byte(mustJSON(brief))
	require.NoError(t, store.WriteCaptionVersion("run-1", "variant_0", 0, "first caption", briefJSON, []byte(`{}`)))

	text := &fakeText{responses: []string{"a brand new caption line"}}
	s := &Caption{Cfg: Config{Text: text, Store: store, Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.GeneratedImageResults = []pipeline.GeneratedImageResult{{Status: "success"}}

	ctx := executor.WithPayload(context.Background(), CaptionRequest{ImageIndex: 0, RegenerateWriterOnly: true})
	require.NoError(t, s.Run(ctx, pctx))

	v, err := store.LatestCaptionVersion("run-1", "variant_0")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, text.calls)
}

func TestResolveFinalInstructions_TacticalVoiceOutranksBrand(t *testing.T) {
	settings := pipeline.CaptionSettings{}
	strat := pipeline.StrategyRecord{TargetVoice: "playful", TargetObjective: "drive sales"}
	out := resolveFinalInstructions(settings, strat, "formal corporate voice")
	assert.Equal(t, "playful", out.Tone)
	assert.Equal(t, "drive sales", out.CTA)
	assert.True(t, out.Emojis)
	assert.Equal(t, "moderate", out.Hashtags)
}

func TestResolveFinalInstructions_ExplicitSettingsWin(t *testing.T) {
	no := false
	settings := pipeline.CaptionSettings{Tone: "urgent", CallToAction: "shop now", IncludeEmojis: &no, HashtagStrategy: "aggressive"}
	out := resolveFinalInstructions(settings, pipeline.StrategyRecord{TargetVoice: "playful"}, "formal")
	assert.Equal(t, "urgent", out.Tone)
	assert.Equal(t, "shop now", out.CTA)
	assert.False(t, out.Emojis)
	assert.Equal(t, "aggressive", out.Hashtags)
}
