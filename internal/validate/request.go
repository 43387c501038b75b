// Package validate enforces the run-submission request shape at the API
// boundary before the Executor ever sees it, using JSON Schema generated
// from the Go request types plus a few semantic checks schema tags can't
// express cleanly.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/preset"
)

// ImageReferenceInput mirrors the nested image_reference request shape.
type ImageReferenceInput struct {
	FilePathOrHandle string `json:"file_path_or_handle" jsonschema:"required"`
	Instruction      string `json:"instruction,omitempty"`
}

// BrandKitInput is the nested structured brand kit — the single source of
// truth for branding data at every layer. Legacy flat branding fields are
// rejected before this type is ever populated; see rejectLegacyFields.
type BrandKitInput struct {
	Colors                []string `json:"colors,omitempty"`
	BrandVoiceDescription string   `json:"brand_voice_description,omitempty"`
	LogoFileBase64        string   `json:"logo_file_base64,omitempty"`
}

// RunRequest is the submitted run payload's shape.
type RunRequest struct {
	PlatformName    pipeline.Platform    `json:"platform_name" jsonschema:"required"`
	NumVariants     int                  `json:"num_variants" jsonschema:"required,minimum=1,maximum=6"`
	CreativityLevel int                  `json:"creativity_level" jsonschema:"required,minimum=1,maximum=3"`
	Language        string               `json:"language" jsonschema:"required"`
	RenderText      bool                 `json:"render_text"`
	ApplyBranding   bool                 `json:"apply_branding"`
	Prompt          string               `json:"prompt,omitempty"`
	TaskType        pipeline.TaskType    `json:"task_type,omitempty"`
	TaskDescription string               `json:"task_description,omitempty"`
	ImageReference  *ImageReferenceInput `json:"image_reference,omitempty"`
	BrandKit        *BrandKitInput       `json:"brand_kit,omitempty"`
	PresetID        string               `json:"preset_id,omitempty"`
	PresetType      pipeline.PresetType  `json:"preset_type,omitempty"`
	Overrides       *pipeline.Overrides  `json:"overrides,omitempty"`
}

// legacyFields are the pre-brand_kit flat fields the re-architecture
// retired; present at the top level they must be rejected, not silently
// dropped or merged.
var legacyFields = []string{"branding_elements", "brand_colors"}

// Validate parses and validates a submitted run payload, rejecting
// legacy flat branding fields and any overrides key outside the
// recognized style_recipe schema before returning the typed request.
func Validate(raw []byte) (*RunRequest, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &pipeline.ValidationError{Field: "body", Msg: "not valid JSON: " + err.Error()}
	}
	if err := rejectLegacyFields(generic); err != nil {
		return nil, err
	}

	schemaJSON, err := llmprovider.SchemaFor(&RunRequest{})
	if err != nil {
		return nil, fmt.Errorf("build request schema: %w", err)
	}
	if err := llmprovider.ValidateAgainstSchema(schemaJSON, string(raw)); err != nil {
		return nil, &pipeline.ValidationError{Field: "body", Msg: err.Error()}
	}

	var req RunRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &pipeline.ValidationError{Field: "body", Msg: err.Error()}
	}

	if req.Overrides != nil && len(req.Overrides.VisualConcept) > 0 {
		if err := preset.ValidateOverrideKeys(req.Overrides.VisualConcept); err != nil {
			return nil, err
		}
	}
	if req.PresetID != "" && req.PresetType == "" {
		return nil, &pipeline.ValidationError{Field: "preset_type", Msg: "preset_type is required when preset_id is set"}
	}

	return &req, nil
}

// rejectLegacyFields walks the top level and the brand_kit object for the
// retired flat branding fields.
func rejectLegacyFields(generic map[string]any) error {
	for _, f := range legacyFields {
		if _, present := generic[f]; present {
			return &pipeline.ValidationError{Field: f, Msg: "legacy flat branding field; use brand_kit instead"}
		}
	}
	if bk, ok := generic["brand_kit"].(map[string]any); ok {
		for _, f := range legacyFields {
			if _, present := bk[f]; present {
				return &pipeline.ValidationError{Field: "brand_kit." + f, Msg: "legacy flat branding field; not recognized under brand_kit"}
			}
		}
	}
	return nil
}

// ToContextSeed builds the initial pipeline.Context fields a validated
// request populates before the Executor takes over. Fields not set here
// (preset_data, skip_stages, artifacts) remain zero until the preset
// loader and stages run.
func (r *RunRequest) ToContextSeed(runID string) *pipeline.Context {
	ctx := pipeline.NewContext(runID)
	ctx.PlatformName = r.PlatformName
	ctx.NumVariants = r.NumVariants
	ctx.CreativityLevel = r.CreativityLevel
	ctx.Language = r.Language
	ctx.RenderText = r.RenderText
	ctx.ApplyBranding = r.ApplyBranding
	ctx.Prompt = r.Prompt
	ctx.TaskType = r.TaskType
	ctx.TaskDescription = r.TaskDescription
	ctx.PresetID = r.PresetID
	ctx.PresetType = r.PresetType
	ctx.Overrides = r.Overrides

	if r.ImageReference != nil {
		ctx.ImageReference = &pipeline.ImageReference{
			SavedPath:   r.ImageReference.FilePathOrHandle,
			Instruction: r.ImageReference.Instruction,
		}
	}
	if r.BrandKit != nil {
		ctx.BrandKit = &pipeline.BrandKit{
			Colors:                r.BrandKit.Colors,
			BrandVoiceDescription: r.BrandKit.BrandVoiceDescription,
		}
	}
	return ctx
}
