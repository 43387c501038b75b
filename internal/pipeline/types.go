// Package pipeline defines the typed shared blackboard (Context) for one
// creative-pipeline run, plus the record types stages read and write.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a random id with the given prefix, e.g.
// "run-3f9a1c2e-...".
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// Platform is the enum of supported target platforms.
type Platform string

const (
	PlatformInstagramSquare Platform = "instagram_1x1"
	PlatformInstagramStory  Platform = "instagram_story"
	PlatformFacebook        Platform = "facebook"
	PlatformTikTok          Platform = "tiktok"
	PlatformPinterest       Platform = "pinterest"
	PlatformX               Platform = "x"
)

// TaskType is the optional enum describing the kind of creative task.
type TaskType string

const (
	TaskProductShot   TaskType = "product_shot"
	TaskPromotion     TaskType = "promotion"
	TaskAnnouncement  TaskType = "announcement"
	TaskBrandAwareness TaskType = "brand_awareness"
)

// PresetType distinguishes the two preset kinds that can alter the graph.
type PresetType string

const (
	PresetInputTemplate PresetType = "INPUT_TEMPLATE"
	PresetStyleRecipe   PresetType = "STYLE_RECIPE"
)

// ImageReference is an optional user-supplied reference image.
type ImageReference struct {
	SavedPath   string `json:"saved_path"`
	Instruction string `json:"instruction,omitempty"`
}

// LogoAnalysis is the constrained VLM-derived schema for a brand logo.
type LogoAnalysis struct {
	LogoStyle      string   `json:"logo_style"`
	HasText        bool     `json:"has_text"`
	TextContent    string   `json:"text_content,omitempty"`
	DominantColors []string `json:"dominant_colors,omitempty"`
}

// BrandKit carries brand colors, voice, and optional logo + its analysis.
type BrandKit struct {
	Colors                  []string      `json:"colors,omitempty"`
	BrandVoiceDescription   string        `json:"brand_voice_description,omitempty"`
	LogoAnalysis            *LogoAnalysis `json:"logo_analysis,omitempty"`
	SavedLogoPathInRunDir   string        `json:"saved_logo_path_in_run_dir,omitempty"`
}

// ImageAnalysisResult is the output of the Image Evaluation stage.
type ImageAnalysisResult struct {
	MainSubject       string   `json:"main_subject"`
	SecondaryElements []string `json:"secondary_elements,omitempty"`
	CompositionCues   string   `json:"composition_cues,omitempty"`
	Detailed          bool     `json:"detailed"`
}

// StrategyRecord is one marketing strategy produced by the Strategy stage
// (or carried over from a Style Recipe's bridging).
type StrategyRecord struct {
	TargetAudience  string `json:"target_audience"`
	TargetObjective string `json:"target_objective"`
	TargetVoice     string `json:"target_voice,omitempty"`
	TargetNiche     string `json:"target_niche,omitempty"`
}

// StyleGuidance is one style-guidance record produced by the Style Guide stage.
type StyleGuidance struct {
	StyleDescription string   `json:"style_description"`
	StyleRationale   string   `json:"style_rationale,omitempty"`
	StyleKeywords    []string `json:"style_keywords,omitempty"`
}

// VisualConcept is the structured creative brief produced by Creative Expert
// (or Style Adaptation). The last step before prompt assembly.
type VisualConcept struct {
	MainSubject               string `json:"main_subject,omitempty"`
	CompositionAndFraming     string `json:"composition_and_framing"`
	BackgroundEnvironment     string `json:"background_environment"`
	ForegroundElements        string `json:"foreground_elements,omitempty"`
	LightingAndMood           string `json:"lighting_and_mood"`
	ColorPalette              string `json:"color_palette"`
	VisualStyle               string `json:"visual_style"`
	TextureAndDetails         string `json:"texture_and_details,omitempty"`
	PromotionalTextVisuals    string `json:"promotional_text_visuals,omitempty"`
	BrandingVisuals           string `json:"branding_visuals,omitempty"`
	NegativeElements          string `json:"negative_elements,omitempty"`
	CreativeReasoning         string `json:"creative_reasoning,omitempty"`

	// HasLiteralText records whether promotional_text_visuals holds literal
	// quoted on-image text (from task_description) rather than Creative
	// Expert's own generated/stylistic text. Computed by the pipeline, never
	// produced by or validated against the model's structured output.
	HasLiteralText bool `json:"-"`
}

// GeneratedPrompt pairs a visual concept with the strategy index it came from.
type GeneratedPrompt struct {
	SourceStrategyIndex int           `json:"source_strategy_index"`
	VisualConcept       VisualConcept `json:"visual_concept"`
}

// TokenUsage tracks token counters for one LLM/VLM/image-gen call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationMode records how the image-gen reference image was selected.
type GenerationMode string

const (
	GenModeUserEdit    GenerationMode = "user_edit"
	GenModeLogoScene    GenerationMode = "logo_scene"
	GenModeTextToImage GenerationMode = "text_to_image"
)

// GeneratedImageResult is one record in ctx.generated_image_results.
type GeneratedImageResult struct {
	ImagePath          string             `json:"image_path,omitempty"`
	Status             string             `json:"status"` // "success" | "failed"
	Error              string             `json:"error,omitempty"`
	TokenUsage         *TokenUsage        `json:"token_usage,omitempty"`
	GenerationMode     GenerationMode     `json:"generation_mode,omitempty"`
	ConsistencyMetrics *ConsistencyMetrics `json:"consistency_metrics,omitempty"`
}

// ConsistencyMetrics is populated only for STYLE_RECIPE runs.
type ConsistencyMetrics struct {
	CLIPSimilarity           float64 `json:"clip_similarity"`
	ColorHistogramSimilarity float64 `json:"color_histogram_similarity"`
	Overall                  float64 `json:"overall"`
}

// ImageAssessment is one VLM-derived assessment aligned to a generated image.
type ImageAssessment struct {
	AlignmentToConcept    string              `json:"alignment_to_concept"`
	Defects               []string            `json:"defects,omitempty"`
	TextRenderingAccuracy string              `json:"text_rendering_accuracy,omitempty"`
	ConsistencyMetrics    *ConsistencyMetrics `json:"consistency_metrics,omitempty"`
}

// CaptionSettings is the user-supplied per-request caption configuration.
type CaptionSettings struct {
	Tone            string `json:"tone,omitempty"`
	CallToAction    string `json:"call_to_action,omitempty"`
	IncludeEmojis   *bool  `json:"include_emojis,omitempty"`
	HashtagStrategy string `json:"hashtag_strategy,omitempty"`
	GenerationMode  string `json:"generation_mode,omitempty"` // "Auto" | "Custom"
}

// ResolvedCaptionInstructions is the output of resolve_final_instructions:
// directive strings the Analyst prompt receives, computed in code rather
// than left to in-prompt conditional narrative.
type ResolvedCaptionInstructions struct {
	Tone     string
	CTA      string
	Emojis   bool
	Hashtags string
}

// CaptionBrief is the Analyst's fixed-schema structured output.
type CaptionBrief struct {
	CoreMessage            string            `json:"core_message"`
	KeyThemes               []string          `json:"key_themes,omitempty"`
	SEOKeywords              []string          `json:"seo_keywords,omitempty"`
	TargetEmotion            string            `json:"target_emotion,omitempty"`
	ToneOfVoice              string            `json:"tone_of_voice,omitempty"`
	PlatformOptimizations    map[string]string `json:"platform_optimizations,omitempty"`
	PrimaryCallToAction      string            `json:"primary_call_to_action,omitempty"`
	Hashtags                 []string          `json:"hashtags,omitempty"`
	EmojiSuggestions         []string          `json:"emoji_suggestions,omitempty"`
	TaskTypeNotes            string            `json:"task_type_notes,omitempty"`
}

// CaptionResult is the full persisted v<n>_result.json payload.
type CaptionResult struct {
	Version int          `json:"version"`
	Text    string       `json:"text"`
	Brief   CaptionBrief `json:"brief"`
}

// Diagnostic is a structured non-fatal note attached to a run.
type Diagnostic struct {
	Stage   string         `json:"stage"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Overrides is the partial map applied on top of a loaded recipe.
type Overrides struct {
	Prompt        string         `json:"prompt,omitempty"`
	VisualConcept map[string]any `json:"visual_concept,omitempty"`
}

// HasPromptOverride reports whether a non-empty prompt override is present.
func (o *Overrides) HasPromptOverride() bool {
	return o != nil && o.Prompt != ""
}

// Context is the mutable typed record representing one run — the typed
// blackboard stages read and write. Exactly one stage writes to it
// at a time; see the executor package for the single-writer discipline.
type Context struct {
	mu sync.Mutex

	// Identity & request.
	RunID           string
	CreatedAt       time.Time
	Language        string
	PlatformName    Platform
	NumVariants     int
	CreativityLevel int
	TaskType        TaskType
	TaskDescription string
	RenderText      bool
	ApplyBranding   bool
	Prompt          string

	// Inputs.
	ImageReference *ImageReference
	BrandKit       *BrandKit

	// Preset control.
	PresetID   string
	PresetType PresetType
	PresetData *PresetSnapshot
	Overrides  *Overrides
	SkipStages map[string]bool

	// Intermediate artifacts.
	ImageAnalysisResult      *ImageAnalysisResult
	SuggestedMarketingStrategies []StrategyRecord
	StyleGuidanceSets         []StyleGuidance
	GeneratedImagePrompts     []GeneratedPrompt
	FinalAssembledPrompts     []string
	GeneratedImageResults     []GeneratedImageResult
	ImageAssessments          []ImageAssessment

	// Accounting.
	LLMUsage     map[string]TokenUsage
	StageTimings map[string]time.Duration
	Diagnostics  []Diagnostic
}

// PresetSnapshot is the loaded recipe payload or template snapshot carried
// on the context (ctx.preset_data).
type PresetSnapshot struct {
	VisualConcept *VisualConcept   `json:"visual_concept,omitempty"`
	Strategy      *StrategyRecord  `json:"strategy,omitempty"`
	StyleGuidance *StyleGuidance   `json:"style_guidance,omitempty"`
	FinalPrompt   string           `json:"final_prompt,omitempty"`
	ReferenceImagePath string      `json:"reference_image_path,omitempty"`
	ModelID       string           `json:"model_id,omitempty"`
}

// NewContext builds a fresh run context with zeroed intermediate lists.
func NewContext(runID string) *Context {
	return &Context{
		RunID:        runID,
		CreatedAt:    time.Now(),
		SkipStages:   make(map[string]bool),
		LLMUsage:     make(map[string]TokenUsage),
		StageTimings: make(map[string]time.Duration),
	}
}

// AddDiagnostic appends a diagnostic under the context's lock — diagnostics
// may be written by concurrently fanned-out sub-tasks within a stage.
func (c *Context) AddDiagnostic(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Diagnostics = append(c.Diagnostics, d)
}

// RecordUsage merges token usage under a usage key (e.g. "strategy", "creative_expert:2").
func (c *Context) RecordUsage(key string, usage TokenUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.LLMUsage[key]
	existing.PromptTokens += usage.PromptTokens
	existing.CompletionTokens += usage.CompletionTokens
	existing.TotalTokens += usage.TotalTokens
	c.LLMUsage[key] = existing
}

// RecordStageTiming stores the duration a stage took to execute.
func (c *Context) RecordStageTiming(stage string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StageTimings[stage] = d
}

// IsSkipped reports whether a stage name is in the skip set.
func (c *Context) IsSkipped(stage string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SkipStages[stage]
}
