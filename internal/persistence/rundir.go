// Package persistence writes and reads the on-disk run directory layout:
// pipeline_metadata.json, the logo and generated-image files, and the
// per-image caption version files.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soochol/creativeflow/internal/pipeline"
)

// RunStore roots all run directories under a single runs_root directory.
type RunStore struct {
	runsRoot string
}

func NewRunStore(runsRoot string) *RunStore {
	return &RunStore{runsRoot: runsRoot}
}

func (s *RunStore) RunDir(runID string) string {
	return filepath.Join(s.runsRoot, runID)
}

// EnsureRunDir creates <runs_root>/<run_id> if it does not exist.
func (s *RunStore) EnsureRunDir(runID string) error {
	if err := os.MkdirAll(s.RunDir(runID), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	return nil
}

// metadataDoc is the serialized shape of pipeline_metadata.json: the context
// plus a processing_context object carrying accounting data.
type metadataDoc struct {
	RunID           string                          `json:"run_id"`
	CreatedAt       time.Time                       `json:"created_at"`
	PlatformName    pipeline.Platform               `json:"platform_name"`
	NumVariants     int                             `json:"num_variants"`
	CreativityLevel int                             `json:"creativity_level"`
	Language        string                          `json:"language"`
	TaskType        pipeline.TaskType               `json:"task_type,omitempty"`
	TaskDescription string                          `json:"task_description,omitempty"`
	RenderText      bool                            `json:"render_text"`
	ApplyBranding   bool                            `json:"apply_branding"`
	Prompt          string                          `json:"prompt,omitempty"`
	ImageReference  *pipeline.ImageReference         `json:"image_reference,omitempty"`
	BrandKit        *pipeline.BrandKit               `json:"brand_kit,omitempty"`
	PresetID        string                          `json:"preset_id,omitempty"`
	PresetType      pipeline.PresetType             `json:"preset_type,omitempty"`

	ImageAnalysisResult         *pipeline.ImageAnalysisResult  `json:"image_analysis_result,omitempty"`
	SuggestedMarketingStrategies []pipeline.StrategyRecord     `json:"suggested_marketing_strategies,omitempty"`
	StyleGuidanceSets            []pipeline.StyleGuidance      `json:"style_guidance_sets,omitempty"`
	GeneratedImagePrompts        []pipeline.GeneratedPrompt    `json:"generated_image_prompts,omitempty"`
	FinalAssembledPrompts        []string                      `json:"final_assembled_prompts,omitempty"`
	GeneratedImageResults        []pipeline.GeneratedImageResult `json:"generated_image_results,omitempty"`
	ImageAssessments             []pipeline.ImageAssessment     `json:"image_assessments,omitempty"`

	ProcessingContext processingContext `json:"processing_context"`
}

type processingContext struct {
	LLMCallUsage map[string]pipeline.TokenUsage   `json:"llm_call_usage"`
	StageTimings map[string]string                `json:"stage_timings"`
	Diagnostics  []pipeline.Diagnostic            `json:"diagnostics"`
}

// WriteMetadata serializes ctx to <run_dir>/pipeline_metadata.json.
func (s *RunStore) WriteMetadata(ctx *pipeline.Context) error {
	if err := s.EnsureRunDir(ctx.RunID); err != nil {
		return err
	}

	timings := make(map[string]string, len(ctx.StageTimings))
	for k, v := range ctx.StageTimings {
		timings[k] = v.String()
	}

	doc := metadataDoc{
		RunID:                         ctx.RunID,
		CreatedAt:                     ctx.CreatedAt,
		PlatformName:                  ctx.PlatformName,
		NumVariants:                   ctx.NumVariants,
		CreativityLevel:               ctx.CreativityLevel,
		Language:                      ctx.Language,
		TaskType:                      ctx.TaskType,
		TaskDescription:               ctx.TaskDescription,
		RenderText:                    ctx.RenderText,
		ApplyBranding:                 ctx.ApplyBranding,
		Prompt:                        ctx.Prompt,
		ImageReference:                ctx.ImageReference,
		BrandKit:                      ctx.BrandKit,
		PresetID:                      ctx.PresetID,
		PresetType:                    ctx.PresetType,
		ImageAnalysisResult:           ctx.ImageAnalysisResult,
		SuggestedMarketingStrategies:  ctx.SuggestedMarketingStrategies,
		StyleGuidanceSets:             ctx.StyleGuidanceSets,
		GeneratedImagePrompts:         ctx.GeneratedImagePrompts,
		FinalAssembledPrompts:         ctx.FinalAssembledPrompts,
		GeneratedImageResults:         ctx.GeneratedImageResults,
		ImageAssessments:              ctx.ImageAssessments,
		ProcessingContext: processingContext{
			LLMCallUsage: ctx.LLMUsage,
			StageTimings: timings,
			Diagnostics:  ctx.Diagnostics,
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	path := filepath.Join(s.RunDir(ctx.RunID), "pipeline_metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads pipeline_metadata.json back into a fresh *pipeline.Context,
// used by run_single_stage (caption) to resume a previously persisted run.
func (s *RunStore) ReadMetadata(runID string) (*pipeline.Context, error) {
	path := filepath.Join(s.RunDir(runID), "pipeline_metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	ctx := pipeline.NewContext(doc.RunID)
	ctx.CreatedAt = doc.CreatedAt
	ctx.PlatformName = doc.PlatformName
	ctx.NumVariants = doc.NumVariants
	ctx.CreativityLevel = doc.CreativityLevel
	ctx.Language = doc.Language
	ctx.TaskType = doc.TaskType
	ctx.TaskDescription = doc.TaskDescription
	ctx.RenderText = doc.RenderText
	ctx.ApplyBranding = doc.ApplyBranding
	ctx.Prompt = doc.Prompt
	ctx.ImageReference = doc.ImageReference
	ctx.BrandKit = doc.BrandKit
	ctx.PresetID = doc.PresetID
	ctx.PresetType = doc.PresetType
	ctx.ImageAnalysisResult = doc.ImageAnalysisResult
	ctx.SuggestedMarketingStrategies = doc.SuggestedMarketingStrategies
	ctx.StyleGuidanceSets = doc.StyleGuidanceSets
	ctx.GeneratedImagePrompts = doc.GeneratedImagePrompts
	ctx.FinalAssembledPrompts = doc.FinalAssembledPrompts
	ctx.GeneratedImageResults = doc.GeneratedImageResults
	ctx.ImageAssessments = doc.ImageAssessments
	ctx.LLMUsage = doc.ProcessingContext.LLMCallUsage
	ctx.Diagnostics = doc.ProcessingContext.Diagnostics
	return ctx, nil
}

// WriteLogo saves the brand kit logo preview as logo.png.
func (s *RunStore) WriteLogo(runID string, pngBytes []byte) (string, error) {
	if err := s.EnsureRunDir(runID); err != nil {
		return "", err
	}
	path := filepath.Join(s.RunDir(runID), "logo.png")
	if err := os.WriteFile(path, pngBytes, 0o644); err != nil {
		return "", fmt.Errorf("write logo: %w", err)
	}
	return path, nil
}

// WriteVariantImage saves a generated or edited image for variant index i,
// using the filename scheme that embeds the index for refinement lookups.
func (s *RunStore) WriteVariantImage(runID string, index int, edited bool, suffix string, pngBytes []byte) (string, error) {
	if err := s.EnsureRunDir(runID); err != nil {
		return "", err
	}
	verb := "generated"
	if edited {
		verb = "edited"
	}
	name := fmt.Sprintf("%s_image_strategy_%d_%s.png", verb, index, suffix)
	path := filepath.Join(s.RunDir(runID), name)
	if err := os.WriteFile(path, pngBytes, 0o644); err != nil {
		return "", fmt.Errorf("write variant image: %w", err)
	}
	return path, nil
}

// CaptionDir returns the directory holding an image's caption versions,
// creating it if absent.
func (s *RunStore) CaptionDir(runID, imageID string) (string, error) {
	dir := filepath.Join(s.RunDir(runID), "captions", imageID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create caption dir: %w", err)
	}
	return dir, nil
}

// WriteCaptionVersion persists the three artifacts for one caption version:
// the caption text, the brief JSON, and the full result JSON.
func (s *RunStore) WriteCaptionVersion(runID, imageID string, version int, text string, brief, result []byte) error {
	dir, err := s.CaptionDir(runID, imageID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("v%d.txt", version)), []byte(text), 0o644); err != nil {
		return fmt.Errorf("write caption text: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("v%d_brief.json", version)), brief, 0o644); err != nil {
		return fmt.Errorf("write caption brief: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("v%d_result.json", version)), result, 0o644); err != nil {
		return fmt.Errorf("write caption result: %w", err)
	}
	return nil
}

// ReadCaptionBrief loads a previously persisted brief for regenerate_writer_only.
func (s *RunStore) ReadCaptionBrief(runID, imageID string, version int) ([]byte, error) {
	dir := filepath.Join(s.RunDir(runID), "captions", imageID)
	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("v%d_brief.json", version)))
	if err != nil {
		return nil, fmt.Errorf("read cached brief: %w", err)
	}
	return data, nil
}

// LatestCaptionVersion scans the caption directory for the highest version
// number present, returning -1 if none exist yet (versions are 0-indexed:
// the first caption is v0, the first regeneration is v1).
func (s *RunStore) LatestCaptionVersion(runID, imageID string) (int, error) {
	dir := filepath.Join(s.RunDir(runID), "captions", imageID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("list caption dir: %w", err)
	}
	latest := -1
	for _, e := range entries {
		var v int
		if _, err := fmt.Sscanf(e.Name(), "v%d_result.json", &v); err == nil && v > latest {
			latest = v
		}
	}
	return latest, nil
}
