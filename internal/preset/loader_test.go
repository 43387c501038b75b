package preset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/creativeflow/internal/pipeline"
)

func TestLoadAndApplyPreset_InputTemplate_FillsBlankFields(t *testing.T) {
	repo := NewMemoryRepository()
	renderText := true
	p := &Preset{
		UserID: "user-1",
		Type:   pipeline.PresetInputTemplate,
		InputSnapshot: &InputSnapshot{
			Prompt:       "promote a weekend sale",
			PlatformName: pipeline.PlatformFacebook,
			NumVariants:  3,
			RenderText:   &renderText,
		},
	}
	require.NoError(t, repo.Create(context.Background(), p))

	loader := NewLoader(repo)
	pctx := pipeline.NewContext("run-1")

	require.NoError(t, loader.LoadAndApplyPreset(context.Background(), pctx, p.ID, "user-1"))

	assert.Equal(t, "promote a weekend sale", pctx.Prompt)
	assert.Equal(t, pipeline.PlatformFacebook, pctx.PlatformName)
	assert.Equal(t, 3, pctx.NumVariants)
	assert.True(t, pctx.RenderText)
	assert.Empty(t, pctx.SkipStages)
}

func TestLoadAndApplyPreset_InputTemplate_RequestFieldsWin(t *testing.T) {
	repo := NewMemoryRepository()
	p := &Preset{
		UserID: "user-1",
		Type:   pipeline.PresetInputTemplate,
		InputSnapshot: &InputSnapshot{
			Prompt:      "template prompt",
			NumVariants: 3,
		},
	}
	require.NoError(t, repo.Create(context.Background(), p))

	loader := NewLoader(repo)
	pctx := pipeline.NewContext("run-1")
	pctx.Prompt = "user supplied prompt"
	pctx.NumVariants = 1

	require.NoError(t, loader.LoadAndApplyPreset(context.Background(), pctx, p.ID, "user-1"))

	assert.Equal(t, "user supplied prompt", pctx.Prompt)
	assert.Equal(t, 1, pctx.NumVariants)
}

func TestLoadAndApplyPreset_StyleRecipe_SkipsCreativeBlock(t *testing.T) {
	repo := NewMemoryRepository()
	p := &Preset{
		UserID: "user-1",
		Type:   pipeline.PresetStyleRecipe,
		StyleRecipeData: &StyleRecipe{
			VisualConcept: pipeline.VisualConcept{MainSubject: "sneaker"},
			FinalPrompt:   "a red sneaker",
		},
	}
	require.NoError(t, repo.Create(context.Background(), p))

	loader := NewLoader(repo)
	pctx := pipeline.NewContext("run-1")

	require.NoError(t, loader.LoadAndApplyPreset(context.Background(), pctx, p.ID, "user-1"))

	require.NotNil(t, pctx.PresetData)
	assert.Equal(t, "sneaker", pctx.PresetData.VisualConcept.MainSubject)
	for stage := range StrategyStages {
		assert.True(t, pctx.SkipStages[stage], "expected %s to be skipped", stage)
	}
}

func TestLoadAndApplyPreset_NotFoundPropagates(t *testing.T) {
	repo := NewMemoryRepository()
	loader := NewLoader(repo)
	pctx := pipeline.NewContext("run-1")

	err := loader.LoadAndApplyPreset(context.Background(), pctx, "missing", "user-1")
	var notFound *NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestLoadAndApplyPreset_TouchFailureIsOptional(t *testing.T) {
	repo := NewMemoryRepository()
	p := &Preset{
		UserID:        "user-1",
		Type:          pipeline.PresetInputTemplate,
		InputSnapshot: &InputSnapshot{Prompt: "x"},
	}
	require.NoError(t, repo.Create(context.Background(), p))

	// Delete the preset's backing entry so Touch fails, without going through
	// repo.Delete (which would also make Get fail before Touch is reached in
	// a real deployment; here we only need Touch itself to fail).
	repo.mu.Lock()
	delete(repo.presets, p.ID)
	repo.mu.Unlock()

	// Re-seed so Get succeeds but under a copy Touch can't find by id... instead,
	// simulate via a wrapper repo whose Touch always fails.
	loader := NewLoader(&touchFailingRepo{MemoryRepository: repo, preset: p})
	pctx := pipeline.NewContext("run-1")

	err := loader.LoadAndApplyPreset(context.Background(), pctx, p.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, pctx.Diagnostics, 1)
	assert.Equal(t, "preset_loader", pctx.Diagnostics[0].Stage)
}

type touchFailingRepo struct {
	*MemoryRepository
	preset *Preset
}

func (r *touchFailingRepo) Get(_ context.Context, id, userID string) (*Preset, error) {
	if id != r.preset.ID || userID != r.preset.UserID {
		return nil, &NotFound{ID: id}
	}
	cp := *r.preset
	return &cp, nil
}

func (r *touchFailingRepo) Touch(context.Context, string) error {
	return &NotFound{ID: "gone"}
}
