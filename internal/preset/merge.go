package preset

import "github.com/soochol/creativeflow/internal/pipeline"

// recipeFieldKeys enumerates the fields of visual_concept that overrides are
// allowed to touch. Anything else is rejected at the API
// boundary ("Keys in overrides outside the style_recipe schema are
// rejected, not silently dropped").
var recipeFieldKeys = map[string]bool{
	"main_subject":             true,
	"composition_and_framing":  true,
	"background_environment":  true,
	"foreground_elements":     true,
	"lighting_and_mood":       true,
	"color_palette":           true,
	"visual_style":            true,
	"texture_and_details":     true,
	"promotional_text_visuals": true,
	"branding_visuals":        true,
	"negative_elements":       true,
	"creative_reasoning":      true,
}

// ValidateOverrideKeys rejects any key in a visual_concept override map that
// is not a recognized VisualConcept field.
func ValidateOverrideKeys(fields map[string]any) error {
	for k := range fields {
		if !recipeFieldKeys[k] {
			return &pipeline.ValidationError{Field: "overrides.visual_concept." + k, Msg: "not a recognized style_recipe field"}
		}
	}
	return nil
}

// MergeRecipeWithOverrides performs a field-wise merge where overrides
// replaces matching keys inside style_recipe.visual_concept. Only
// visual_concept is merged: strategy, style_guidance and final_prompt are
// carried over unchanged, and non-string override values are ignored.
// MergeRecipeWithOverrides(r, {}) ≡ r.
func MergeRecipeWithOverrides(recipe *StyleRecipe, overrides *pipeline.Overrides) (*StyleRecipe, error) {
	merged := *recipe
	if overrides == nil {
		return &merged, nil
	}
	if len(overrides.VisualConcept) > 0 {
		if err := ValidateOverrideKeys(overrides.VisualConcept); err != nil {
			return nil, err
		}
		merged.VisualConcept = mergeVisualConcept(recipe.VisualConcept, overrides.VisualConcept)
	}
	return &merged, nil
}

func mergeVisualConcept(base pipeline.VisualConcept, fields map[string]any) pipeline.VisualConcept {
	out := base
	setIfPresent := func(key string, dst *string) {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok {
				*dst = s
			}
		}
	}
	setIfPresent("main_subject", &out.MainSubject)
	setIfPresent("composition_and_framing", &out.CompositionAndFraming)
	setIfPresent("background_environment", &out.BackgroundEnvironment)
	setIfPresent("foreground_elements", &out.ForegroundElements)
	setIfPresent("lighting_and_mood", &out.LightingAndMood)
	setIfPresent("color_palette", &out.ColorPalette)
	setIfPresent("visual_style", &out.VisualStyle)
	setIfPresent("texture_and_details", &out.TextureAndDetails)
	setIfPresent("promotional_text_visuals", &out.PromotionalTextVisuals)
	setIfPresent("branding_visuals", &out.BrandingVisuals)
	setIfPresent("negative_elements", &out.NegativeElements)
	setIfPresent("creative_reasoning", &out.CreativeReasoning)
	return out
}
