package stages

import (
	"context"
	"fmt"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/preset"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// StyleAdaptation runs only when a STYLE_RECIPE preset's visual concept
// needs reconciling against an edit instruction or a reference image. It
// bridges the skipped strategy/style_guide/creative_expert block and
// applies any remaining recipe overrides.
type StyleAdaptation struct {
	Cfg Config
}

// pruneOrder is the priority order in which long fields are dropped from
// the adaptation prompt when the estimated token budget runs tight, least
// important first.
var pruneOrder = []string{"creative_reasoning", "texture_and_details", "style_rationale"}

// approxContextWindow and the 85% threshold are the reasoned-default budget
// guard; stages never learn the provider's real window size, so this is a
// conservative character-based proxy (4 chars/token).
const approxContextWindow = 32000
const pruneThresholdChars = approxContextWindow * 4 * 85 / 100

func (s *StyleAdaptation) Run(ctx context.Context, pctx *pipeline.Context) error {
	if pctx.PresetData == nil || pctx.PresetData.VisualConcept == nil {
		return &pipeline.PreconditionError{Stage: "style_adaptation", Field: "preset_data", Msg: "style_adaptation requires a loaded style_recipe"}
	}

	base := *pctx.PresetData.VisualConcept

	// The new concept instruction: an override prompt wins (a brand new
	// brief on top of the recipe), then a reference-image edit instruction,
	// falling back to the new image's analyzed subject when neither names
	// a concept in words.
	instruction := ""
	if pctx.Overrides != nil && pctx.Overrides.Prompt != "" {
		instruction = pctx.Overrides.Prompt
	} else if pctx.ImageReference != nil && pctx.ImageReference.Instruction != "" {
		instruction = pctx.ImageReference.Instruction
	}

	newSubject := ""
	if instruction == "" && pctx.ImageAnalysisResult != nil {
		newSubject = pctx.ImageAnalysisResult.MainSubject
	}

	rationale := ""
	if pctx.PresetData.StyleGuidance != nil {
		rationale = pctx.PresetData.StyleGuidance.StyleRationale
	}

	userPrompt, pruned := s.buildPrompt(base, rationale, instruction, newSubject)
	for _, field := range pruned {
		pctx.AddDiagnostic(pipeline.Diagnostic{
			Stage:   "style_adaptation",
			Kind:    "prompt_pruned",
			Message: fmt.Sprintf("dropped %s to stay under the token budget", field),
		})
	}

	var adapted pipeline.VisualConcept
	err := llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Text.Complete(ctx, prompts.StyleAdaptationSystemPrompt, userPrompt)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage("style_adaptation", pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &adapted)
	})
	if err != nil {
		return &pipeline.ProviderError{Provider: s.Cfg.Text.Name(), Err: err}
	}

	// Bridge the skipped creative block: downstream stages (prompt_assembly,
	// image_assessment) index into these slices positionally, so the single
	// adapted concept must land at index 0 alongside its source strategy and
	// style guidance, even though those two stages never ran this time.
	pctx.GeneratedImagePrompts = []pipeline.GeneratedPrompt{{SourceStrategyIndex: 0, VisualConcept: adapted}}
	pctx.SuggestedMarketingStrategies = []pipeline.StrategyRecord{*pctx.PresetData.Strategy}
	pctx.StyleGuidanceSets = []pipeline.StyleGuidance{*pctx.PresetData.StyleGuidance}

	if pctx.Overrides != nil && len(pctx.Overrides.VisualConcept) > 0 {
		recipe := &preset.StyleRecipe{
			VisualConcept: adapted,
			Strategy:      *pctx.PresetData.Strategy,
			StyleGuidance: *pctx.PresetData.StyleGuidance,
			FinalPrompt:   pctx.PresetData.FinalPrompt,
		}
		merged, mergeErr := preset.MergeRecipeWithOverrides(recipe, pctx.Overrides)
		if mergeErr != nil {
			return mergeErr
		}
		pctx.GeneratedImagePrompts[0].VisualConcept = merged.VisualConcept
	}

	return nil
}

// buildPrompt renders the user-facing adaptation prompt, pruning long
// fields from base (and the style rationale alongside it) in priority
// order until the estimate fits the budget.
func (s *StyleAdaptation) buildPrompt(base pipeline.VisualConcept, rationale, instruction, newSubject string) (string, []string) {
	var pruned []string
	for {
		prompt := renderAdaptationPrompt(base, rationale, instruction, newSubject)
		if len(prompt) <= pruneThresholdChars || len(pruned) == len(pruneOrder) {
			return prompt, pruned
		}
		field := pruneOrder[len(pruned)]
		switch field {
		case "creative_reasoning":
			base.CreativeReasoning = ""
		case "texture_and_details":
			base.TextureAndDetails = ""
		case "style_rationale":
			rationale = ""
		}
		pruned = append(pruned, field)
	}
}

func renderAdaptationPrompt(concept pipeline.VisualConcept, rationale, instruction, newSubject string) string {
	var subjectLine string
	if newSubject != "" {
		subjectLine = fmt.Sprintf("New image's subject (no prompt given; take this as the new main_subject): %s\n\n", newSubject)
	}
	return fmt.Sprintf(
		"Edit instruction: %s\n\n%sExisting visual concept:\nmain_subject: %s\ncomposition_and_framing: %s\nbackground_environment: %s\nforeground_elements: %s\nlighting_and_mood: %s\ncolor_palette: %s\nvisual_style: %s\ntexture_and_details: %s\npromotional_text_visuals: %s\nbranding_visuals: %s\nnegative_elements: %s\ncreative_reasoning: %s\nstyle_rationale: %s\n",
		instruction, subjectLine, concept.MainSubject, concept.CompositionAndFraming, concept.BackgroundEnvironment,
		concept.ForegroundElements, concept.LightingAndMood, concept.ColorPalette, concept.VisualStyle,
		concept.TextureAndDetails, concept.PromotionalTextVisuals, concept.BrandingVisuals,
		concept.NegativeElements, concept.CreativeReasoning, rationale,
	)
}
