package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/creativeflow/internal/executor"
	"github.com/soochol/creativeflow/internal/persistence"
	"github.com/soochol/creativeflow/internal/pipeline"
)

func TestImageGeneration_Run_TextToImageHappyPath(t *testing.T) {
	store := persistence.NewRunStore(t.TempDir())
	s := &ImageGeneration{Cfg: Config{
		Image: &fakeImage{},
		Pool:  executor.NewWorkerPool(2),
		Store: store,
		Retry: noRetry(),
	}}

	pctx := pipeline.NewContext("run-1")
	pctx.FinalAssembledPrompts = []string{"a red sneaker", "a blue sneaker"}

	require.NoError(t, s.Run(context.Background(), pctx))
	require.Len(t, pctx.GeneratedImageResults, 2)
	for _, r := range pctx.GeneratedImageResults {
		assert.Equal(t, "success", r.Status)
		assert.Equal(t, pipeline.GenModeTextToImage, r.GenerationMode)
		assert.FileExists(t, r.ImagePath)
	}
}

func TestImageGeneration_Run_UserEditPrefersReferenceImage(t *testing.T) {
	store := persistence.NewRunStore(t.TempDir())
	refPath := filepath.Join(t.TempDir(), "ref.png")
	require.NoError(t, os.WriteFile(refPath, []byte("ref"), 0o644))

	s := &ImageGeneration{Cfg: Config{Image: &fakeImage{}, Pool: executor.NewWorkerPool(1), Store: store, Retry: noRetry()}}
	pctx := pipeline.NewContext("run-1")
	pctx.ImageReference = &pipeline.ImageReference{SavedPath: refPath}
	pctx.FinalAssembledPrompts = []string{"keep the pose"}

	require.NoError(t, s.Run(context.Background(), pctx))
	assert.Equal(t, pipeline.GenModeUserEdit, pctx.GeneratedImageResults[0].GenerationMode)
}

func TestImageGeneration_Run_AllFailuresIsContractViolation(t *testing.T) {
	store := persistence.NewRunStore(t.TempDir())
	s := &ImageGeneration{Cfg: Config{
		Image: &fakeImage{err: errors.New("content policy violation")},
		Pool:  executor.NewWorkerPool(1),
		Store: store,
		Retry: noRetry(),
	}}

	pctx := pipeline.NewContext("run-1")
	pctx.FinalAssembledPrompts = []string{"a sneaker"}

	err := s.Run(context.Background(), pctx)
	var violation *pipeline.ContractViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "failed", pctx.GeneratedImageResults[0].Status)
}

func TestImageGeneration_Run_UnreadableReferenceMarksThatVariantFailed(t *testing.T) {
	store := persistence.NewRunStore(t.TempDir())
	s := &ImageGeneration{Cfg: Config{Image: &fakeImage{}, Pool: executor.NewWorkerPool(1), Store: store, Retry: noRetry()}}

	pctx := pipeline.NewContext("run-1")
	pctx.ImageReference = &pipeline.ImageReference{SavedPath: "/no/such/ref.png"}
	pctx.FinalAssembledPrompts = []string{"a sneaker"}

	err := s.Run(context.Background(), pctx)
	var violation *pipeline.ContractViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "failed", pctx.GeneratedImageResults[0].Status)
}
