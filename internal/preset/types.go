// Package preset implements the data model, resolution, merge-with-overrides,
// and stage-skip policy for Input Templates and Style Recipes.
package preset

import (
	"time"

	"github.com/soochol/creativeflow/internal/pipeline"
)

// InputSnapshot is a structured copy of the user-facing form inputs,
// including brand_kit, for an INPUT_TEMPLATE preset.
type InputSnapshot struct {
	Prompt          string               `json:"prompt,omitempty"`
	PlatformName    pipeline.Platform    `json:"platform_name,omitempty"`
	NumVariants     int                  `json:"num_variants,omitempty"`
	CreativityLevel int                  `json:"creativity_level,omitempty"`
	Language        string               `json:"language,omitempty"`
	RenderText      *bool                `json:"render_text,omitempty"`
	ApplyBranding   *bool                `json:"apply_branding,omitempty"`
	TaskType        pipeline.TaskType    `json:"task_type,omitempty"`
	TaskDescription string               `json:"task_description,omitempty"`
	BrandKit        *pipeline.BrandKit   `json:"brand_kit,omitempty"`
}

// StyleRecipe is the structured record captured from a completed run's
// chosen variant, for a STYLE_RECIPE preset.
type StyleRecipe struct {
	VisualConcept pipeline.VisualConcept `json:"visual_concept"`
	Strategy      pipeline.StrategyRecord `json:"strategy"`
	StyleGuidance pipeline.StyleGuidance  `json:"style_guidance"`
	FinalPrompt   string                  `json:"final_prompt"`
	ReferenceImagePath string             `json:"reference_image_path,omitempty"`
}

// Preset is a persisted artifact independent of any specific run.
type Preset struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	UserID          string               `json:"user_id"`
	Version         int                  `json:"version"`
	ModelID         string               `json:"model_id"`
	PipelineVersion string               `json:"pipeline_version"`
	Type            pipeline.PresetType  `json:"preset_type"`
	InputSnapshot   *InputSnapshot       `json:"input_snapshot,omitempty"`
	StyleRecipeData *StyleRecipe         `json:"style_recipe,omitempty"`
	BrandKit        *pipeline.BrandKit   `json:"brand_kit,omitempty"`
	UsageCount      int                  `json:"usage_count"`
	LastUsedAt      *time.Time           `json:"last_used_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Validate enforces the preset_type ⇔ payload invariant.
func (p *Preset) Validate() error {
	switch p.Type {
	case pipeline.PresetInputTemplate:
		if p.InputSnapshot == nil || p.StyleRecipeData != nil {
			return &pipeline.ValidationError{Field: "preset_type", Msg: "INPUT_TEMPLATE requires input_snapshot and no style_recipe"}
		}
	case pipeline.PresetStyleRecipe:
		if p.StyleRecipeData == nil || p.InputSnapshot != nil {
			return &pipeline.ValidationError{Field: "preset_type", Msg: "STYLE_RECIPE requires style_recipe and no input_snapshot"}
		}
	default:
		return &pipeline.ValidationError{Field: "preset_type", Msg: "unknown preset type"}
	}
	return nil
}
