package preset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soochol/creativeflow/internal/pipeline"
)

// Loader resolves a preset id into context fields and a stage-skip set.
type Loader struct {
	repo Repository
}

func NewLoader(repo Repository) *Loader {
	return &Loader{repo: repo}
}

// StrategyStages is the set of creative-block stage names a STYLE_RECIPE
// preset skips by default.
var StrategyStages = map[string]bool{
	"strategy":        true,
	"style_guide":     true,
	"creative_expert": true,
}

// LoadAndApplyPreset implements load_and_apply_preset(ctx, preset_id, user_id, session).
// It mutates ctx in place. Request-time fields already set on ctx win over
// template fields.
func (l *Loader) LoadAndApplyPreset(ctx context.Context, pctx *pipeline.Context, presetID, userID string) error {
	p, err := l.repo.Get(ctx, presetID, userID)
	if err != nil {
		return err
	}

	pctx.PresetID = p.ID
	pctx.PresetType = p.Type

	switch p.Type {
	case pipeline.PresetInputTemplate:
		applyInputTemplate(pctx, p.InputSnapshot)
		if p.BrandKit != nil {
			mergeBrandKit(pctx, p.BrandKit)
		}
		// skip_stages remains empty for INPUT_TEMPLATE.

	case pipeline.PresetStyleRecipe:
		pctx.PresetData = &pipeline.PresetSnapshot{
			VisualConcept:      &p.StyleRecipeData.VisualConcept,
			Strategy:           &p.StyleRecipeData.Strategy,
			StyleGuidance:      &p.StyleRecipeData.StyleGuidance,
			FinalPrompt:        p.StyleRecipeData.FinalPrompt,
			ReferenceImagePath: p.StyleRecipeData.ReferenceImagePath,
			ModelID:            p.ModelID,
		}
		for stage := range StrategyStages {
			pctx.SkipStages[stage] = true
		}
		if p.BrandKit != nil {
			mergeBrandKit(pctx, p.BrandKit)
		}

	default:
		return &pipeline.ValidationError{Field: "preset_type", Msg: "unknown preset type"}
	}

	// Best-effort usage accounting: must never fail the run.
	if err := l.repo.Touch(ctx, p.ID); err != nil {
		slog.Warn("preset usage_count increment failed", "preset_id", p.ID, "err", err)
		pctx.AddDiagnostic(pipeline.Diagnostic{
			Stage:   "preset_loader",
			Kind:    "optional_failure",
			Message: fmt.Sprintf("usage_count increment failed: %v", err),
		})
	}

	return nil
}

// applyInputTemplate deep-merges snapshot into ctx's runtime form fields,
// with non-zero request-time fields on ctx winning (explicit user input
// overrides template).
func applyInputTemplate(ctx *pipeline.Context, snap *InputSnapshot) {
	if snap == nil {
		return
	}
	if ctx.Prompt == "" {
		ctx.Prompt = snap.Prompt
	}
	if ctx.PlatformName == "" {
		ctx.PlatformName = snap.PlatformName
	}
	if ctx.NumVariants == 0 {
		ctx.NumVariants = snap.NumVariants
	}
	if ctx.CreativityLevel == 0 {
		ctx.CreativityLevel = snap.CreativityLevel
	}
	if ctx.Language == "" {
		ctx.Language = snap.Language
	}
	if ctx.TaskType == "" {
		ctx.TaskType = snap.TaskType
	}
	if ctx.TaskDescription == "" {
		ctx.TaskDescription = snap.TaskDescription
	}
	// Bools can't be "unset" on the runtime struct, so only the template's
	// own explicit pointer fields backfill when the caller never touched them.
	// Request-time submission always sets these explicitly in our transport,
	// so template bools only apply when the snapshot pointer is non-nil and
	// the context still carries the zero value the transport defaults to.
	if snap.RenderText != nil && !ctx.RenderText {
		ctx.RenderText = *snap.RenderText
	}
	if snap.ApplyBranding != nil && !ctx.ApplyBranding {
		ctx.ApplyBranding = *snap.ApplyBranding
	}
	if snap.BrandKit != nil {
		mergeBrandKit(ctx, snap.BrandKit)
	}
}

// mergeBrandKit applies a template/recipe-sourced brand kit to ctx with
// request-time brand kit fields winning.
func mergeBrandKit(ctx *pipeline.Context, bk *pipeline.BrandKit) {
	if ctx.BrandKit == nil {
		cp := *bk
		ctx.BrandKit = &cp
		return
	}
	if len(ctx.BrandKit.Colors) == 0 {
		ctx.BrandKit.Colors = bk.Colors
	}
	if ctx.BrandKit.BrandVoiceDescription == "" {
		ctx.BrandKit.BrandVoiceDescription = bk.BrandVoiceDescription
	}
	if ctx.BrandKit.SavedLogoPathInRunDir == "" {
		ctx.BrandKit.SavedLogoPathInRunDir = bk.SavedLogoPathInRunDir
	}
	if ctx.BrandKit.LogoAnalysis == nil {
		ctx.BrandKit.LogoAnalysis = bk.LogoAnalysis
	}
}
