// Package llmprovider wraps the LLM/VLM/image-generation black box behind a
// narrow interface the stages call through: structured text completion,
// vision-grounded analysis, and image generation. backends.go owns the
// concrete per-provider wire adapters (OpenAI-compatible HTTP, native
// Gemini text and image); this file adapts them to the three call shapes
// above.
package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"

	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Family classifies an image-generation backend for Prompt Assembly's prefix
// and aspect-ratio rendering choices.
type Family string

const (
	FamilyLiteralDirective Family = "literal-directive"
	FamilyNarrativeFirst   Family = "narrative-first"
)

// TextModel produces structured JSON completions from a system/user prompt
// pair. Used by Strategy, Style Guide, Creative Expert, Style Adaptation,
// and the Caption Analyst/Writer steps.
type TextModel interface {
	Name() string
	Family() Family
	Complete(ctx context.Context, systemPrompt, userPrompt string) (text string, usage Usage, err error)
}

// VisionModel additionally accepts image bytes, for Image Evaluation and
// Image Assessment.
type VisionModel interface {
	TextModel
	CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (text string, usage Usage, err error)
}

// ImageModel generates or edits an image from a prompt and an optional
// reference image.
type ImageModel interface {
	Name() string
	Family() Family
	GenerateImage(ctx context.Context, prompt string, referencePNG []byte) (pngBytes []byte, usage Usage, err error)
}

// Usage mirrors pipeline.TokenUsage without importing the pipeline package,
// keeping this package providers-only; callers convert at the boundary.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// geminiLLM adapts an adkmodel.LLM (the teacher's provider abstraction) to
// TextModel/VisionModel/ImageModel by building the appropriate genai.Content
// parts and unwrapping the response the way convertGeminiResponse does.
type geminiLLM struct {
	llm    adkmodel.LLM
	name   string
	family Family
	model  string
}

// NewTextModel wraps an adkmodel.LLM for plain structured-text completion.
func NewTextModel(llm adkmodel.LLM, model string, family Family) TextModel {
	return &geminiLLM{llm: llm, name: llm.Name(), family: family, model: model}
}

// NewVisionModel wraps an adkmodel.LLM that also accepts image input.
func NewVisionModel(llm adkmodel.LLM, model string, family Family) VisionModel {
	return &geminiLLM{llm: llm, name: llm.Name(), family: family, model: model}
}

func (g *geminiLLM) Name() string   { return g.name }
func (g *geminiLLM) Family() Family { return g.family }

func (g *geminiLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	return g.call(ctx, systemPrompt, userPrompt, nil)
}

func (g *geminiLLM) CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, Usage, error) {
	return g.call(ctx, systemPrompt, userPrompt, imagePNG)
}

func (g *geminiLLM) call(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, Usage, error) {
	parts := []*genai.Part{{Text: userPrompt}}
	if imagePNG != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: imagePNG}})
	}

	req := &adkmodel.LLMRequest{
		Model: g.model,
		Contents: []*genai.Content{
			{Role: "user", Parts: parts},
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		},
	}

	var text string
	var usage Usage
	var callErr error
	for resp, err := range g.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			callErr = err
			break
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, p := range resp.Content.Parts {
			text += p.Text
		}
		if resp.UsageMetadata != nil {
			usage = Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
	}
	if callErr != nil {
		return "", Usage{}, &ProviderCallError{Provider: g.name, Err: callErr}
	}
	if text == "" {
		return "", Usage{}, &ProviderCallError{Provider: g.name, Err: fmt.Errorf("empty response")}
	}
	return text, usage, nil
}

// ProviderCallError is the unexported-detail wrapper llmprovider returns;
// stage callers convert it to *pipeline.ProviderError at the boundary so
// this package stays independent of the pipeline package's error taxonomy.
type ProviderCallError struct {
	Provider string
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

// geminiImageModel adapts an adkmodel.LLM registered under an image-capable
// model name to ImageModel, following the teacher's GeminiImageLLM pattern
// of toggling ResponseModalities and pulling inline image bytes back out.
type geminiImageModel struct {
	llm    adkmodel.LLM
	name   string
	family Family
	model  string
}

// NewImageModel wraps an adkmodel.LLM capable of image generation.
func NewImageModel(llm adkmodel.LLM, model string, family Family) ImageModel {
	return &geminiImageModel{llm: llm, name: llm.Name(), family: family, model: model}
}

func (g *geminiImageModel) Name() string   { return g.name }
func (g *geminiImageModel) Family() Family { return g.family }

func (g *geminiImageModel) GenerateImage(ctx context.Context, prompt string, referencePNG []byte) ([]byte, Usage, error) {
	parts := []*genai.Part{{Text: prompt}}
	if referencePNG != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: referencePNG}})
	}

	req := &adkmodel.LLMRequest{
		Model:    g.model,
		Contents: []*genai.Content{{Role: "user", Parts: parts}},
		Config: &genai.GenerateContentConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var imgBytes []byte
	var usage Usage
	var callErr error
	for resp, err := range g.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			callErr = err
			break
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, p := range resp.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				imgBytes = p.InlineData.Data
			}
		}
		if resp.UsageMetadata != nil {
			usage = Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
	}
	if callErr != nil {
		return nil, Usage{}, &ProviderCallError{Provider: g.name, Err: callErr}
	}
	if imgBytes == nil {
		return nil, Usage{}, &ProviderCallError{Provider: g.name, Err: fmt.Errorf("no image data in response")}
	}
	return imgBytes, usage, nil
}

// DecodeJSON unmarshals a model's raw text output into dst, wrapping decode
// failures with the raw text for diagnosability.
func DecodeJSON(text string, dst any) error {
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return fmt.Errorf("decode structured output: %w (raw: %s)", err, truncate(text, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
