package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/creativeflow/internal/pipeline"
)

func TestStrategy_Run_HappyPath(t *testing.T) {
	strategies := []pipeline.StrategyRecord{
		{TargetAudience: "buyers", TargetObjective: "sell"},
		{TargetAudience: "fans", TargetObjective: "engage"},
	}
	text := &fakeText{responses: []string{"coffee shop", mustJSON(strategies)}}
	s := &Strategy{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.NumVariants = 2
	pctx.Prompt = "promote our new latte"

	require.NoError(t, s.Run(context.Background(), pctx))
	assert.Equal(t, strategies, pctx.SuggestedMarketingStrategies)
	assert.Empty(t, pctx.Diagnostics)
}

func TestStrategy_Run_FallsBackOnNicheFailure(t *testing.T) {
	strategies := []pipeline.StrategyRecord{{TargetAudience: "a", TargetObjective: "b"}}
	text := &fakeText{err: errors.New("auth failed")}
	s := &Strategy{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.NumVariants = 1
	pctx.Prompt = "fresh coffee and muffins"

	err := s.Run(context.Background(), pctx)
	require.NoError(t, err)
	assert.Len(t, pctx.SuggestedMarketingStrategies, 1)
	assert.NotEmpty(t, pctx.Diagnostics)
	_ = strategies
}

func TestStrategy_Run_FallbackStrategiesRepeatPoolWhenShort(t *testing.T) {
	out := fallbackStrategies(5, "fashion")
	require.Len(t, out, 5)
	assert.Equal(t, out[0], out[2])
}

func TestFallbackNiche_KeywordMatch(t *testing.T) {
	assert.Equal(t, "food", fallbackNiche("our new latte", ""))
	assert.Equal(t, "fashion", fallbackNiche("", "summer apparel line"))
	assert.Equal(t, "default", fallbackNiche("software tools", ""))
}

func TestStrategy_ComposeStrategies_CountMismatchErrors(t *testing.T) {
	text := &fakeText{responses: []string{mustJSON([]pipeline.StrategyRecord{{TargetAudience: "x"}})}}
	s := &Strategy{Cfg: Config{Text: text, Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.NumVariants = 3

	_, err := s.composeStrategies(context.Background(), pctx, "default")
	require.Error(t, err)
}
