package llmprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"

	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/soochol/creativeflow/internal/config"
)

// LLMFactory builds an adkmodel.LLM for a configured provider name. Every
// concrete backend below registers itself under a config.ProviderConfig.Type
// string, the way the pipeline's provider roles (text, vision, image) are
// bound to a backend purely through YAML.
type LLMFactory func(providerName string, cfg config.ProviderConfig) adkmodel.LLM

var backendFactories = map[string]LLMFactory{}

// RegisterProvider registers a backend factory under a config type string.
// Called from each backend's init().
func RegisterProvider(typeName string, factory LLMFactory) {
	backendFactories[typeName] = factory
}

// BuildLLM resolves cfg.Type to a registered backend factory. A provider
// with no matching type but a non-empty URL is treated as an OpenAI-compatible
// endpoint (Ollama, LM Studio, any self-hosted gateway), so operators can
// point text_provider/vision_provider/image_provider at arbitrary backends
// without a dedicated factory.
func BuildLLM(providerName string, cfg config.ProviderConfig) (adkmodel.LLM, bool) {
	if factory, ok := backendFactories[cfg.Type]; ok {
		return factory(providerName, cfg), true
	}
	if cfg.URL != "" {
		return NewOpenAILLM(cfg.APIKey,
			WithOpenAIBaseURL(cfg.URL),
			WithOpenAIName(providerName)), true
	}
	return nil, false
}

// LogFunc receives one-line execution notes from a backend (model called,
// error returned) without coupling the backend to progress.Bus or slog.
type LogFunc func(message string)

type logFuncKey struct{}

// WithLogFunc attaches a log callback to ctx for backend calls to pick up.
func WithLogFunc(ctx context.Context, fn LogFunc) context.Context {
	return context.WithValue(ctx, logFuncKey{}, fn)
}

func emitLog(ctx context.Context, msg string) {
	if fn, ok := ctx.Value(logFuncKey{}).(LogFunc); ok {
		fn(msg)
	}
}

// --- Gemini text backend ---

var _ adkmodel.LLM = (*GeminiLLM)(nil)

// GeminiLLM calls the Gemini API directly via google.golang.org/genai for
// text/vision completions (Strategy, Style Guide, Creative Expert, Style
// Adaptation, Image Evaluation, Image Assessment, Caption Analyst/Writer all
// route through this when text_provider/vision_provider names a "gemini"
// entry in config).
type GeminiLLM struct {
	apiKey  string
	name    string
	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiLLM creates a Gemini text/vision adapter under the given provider name.
func NewGeminiLLM(providerName, apiKey string) *GeminiLLM {
	return &GeminiLLM{name: providerName, apiKey: apiKey}
}

func (g *GeminiLLM) Name() string { return g.name }

func (g *GeminiLLM) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.initErr
}

func (g *GeminiLLM) GenerateContent(ctx context.Context, req *adkmodel.LLMRequest, stream bool) iter.Seq2[*adkmodel.LLMResponse, error] {
	return func(yield func(*adkmodel.LLMResponse, error) bool) {
		if err := g.ensureClient(ctx); err != nil {
			yield(nil, fmt.Errorf("gemini: client init failed: %w", err))
			return
		}

		cfg := req.Config
		if cfg == nil {
			cfg = &genai.GenerateContentConfig{}
		}

		emitLog(ctx, fmt.Sprintf("gemini: calling model %s", req.Model))

		if stream {
			for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Model, req.Contents, cfg) {
				if err != nil {
					emitLog(ctx, fmt.Sprintf("gemini error: %s", err))
					yield(nil, fmt.Errorf("gemini: %w", err))
					return
				}
				if !yield(convertGeminiResponse(resp), nil) {
					return
				}
			}
			return
		}

		resp, err := g.client.Models.GenerateContent(ctx, req.Model, req.Contents, cfg)
		if err != nil {
			emitLog(ctx, fmt.Sprintf("gemini error: %s", err))
			yield(nil, fmt.Errorf("gemini: %w", err))
			return
		}
		emitLog(ctx, "gemini: response received")
		yield(convertGeminiResponse(resp), nil)
	}
}

func convertGeminiResponse(resp *genai.GenerateContentResponse) *adkmodel.LLMResponse {
	if resp == nil || len(resp.Candidates) == 0 {
		return &adkmodel.LLMResponse{TurnComplete: true}
	}
	c := resp.Candidates[0]
	turnComplete := c.FinishReason != "" && c.FinishReason != genai.FinishReasonUnspecified
	r := &adkmodel.LLMResponse{
		Content:      c.Content,
		TurnComplete: turnComplete,
		FinishReason: c.FinishReason,
	}
	if resp.UsageMetadata != nil {
		r.UsageMetadata = resp.UsageMetadata
	}
	return r
}

func init() {
	RegisterProvider("gemini", func(name string, cfg config.ProviderConfig) adkmodel.LLM {
		return NewGeminiLLM(name, cfg.APIKey)
	})
}

// --- Gemini image-generation backend ---

var _ adkmodel.LLM = (*GeminiImageLLM)(nil)

// GeminiImageLLM calls Gemini's image-capable models directly, setting
// ResponseModalities so the response carries inline image bytes Image
// Generation can write to a variant file. Kept separate from GeminiLLM
// since it needs model-specific modality negotiation the text path doesn't.
type GeminiImageLLM struct {
	apiKey string
	name   string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiImageLLM creates a Gemini image-generation adapter.
func NewGeminiImageLLM(apiKey string) *GeminiImageLLM {
	return &GeminiImageLLM{apiKey: apiKey, name: "gemini-image"}
}

func (g *GeminiImageLLM) Name() string { return g.name }

func (g *GeminiImageLLM) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.initErr
}

func (g *GeminiImageLLM) GenerateContent(ctx context.Context, req *adkmodel.LLMRequest, stream bool) iter.Seq2[*adkmodel.LLMResponse, error] {
	return func(yield func(*adkmodel.LLMResponse, error) bool) {
		resp, err := g.generate(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(resp, nil)
	}
}

func (g *GeminiImageLLM) generate(ctx context.Context, req *adkmodel.LLMRequest) (*adkmodel.LLMResponse, error) {
	if err := g.ensureClient(ctx); err != nil {
		return nil, fmt.Errorf("gemini-image: client init failed: %w", err)
	}

	cfg := req.Config
	if cfg == nil {
		cfg = &genai.GenerateContentConfig{}
	}
	if isImageCapableModel(req.Model) && len(cfg.ResponseModalities) == 0 {
		cfg.ResponseModalities = []string{"TEXT", "IMAGE"}
	}

	emitLog(ctx, fmt.Sprintf("gemini-image: calling model %s", req.Model))

	result, err := g.client.Models.GenerateContent(ctx, req.Model, req.Contents, cfg)
	if err != nil {
		emitLog(ctx, fmt.Sprintf("gemini-image error: %s", err))
		return nil, fmt.Errorf("gemini-image: %w", err)
	}

	emitLog(ctx, "gemini-image: response received")
	return g.convertResponse(result)
}

func (g *GeminiImageLLM) convertResponse(resp *genai.GenerateContentResponse) (*adkmodel.LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini-image: no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return nil, fmt.Errorf("gemini-image: no content in candidate")
	}
	return &adkmodel.LLMResponse{
		Content:      candidate.Content,
		TurnComplete: true,
		FinishReason: candidate.FinishReason,
	}, nil
}

func init() {
	RegisterProvider("gemini-image", func(name string, cfg config.ProviderConfig) adkmodel.LLM {
		return NewGeminiImageLLM(cfg.APIKey)
	})
}

// isImageCapableModel reports whether model is one of the Gemini model ids
// known to support image output.
func isImageCapableModel(model string) bool {
	imageModels := []string{
		"gemini-2.0-flash-exp-image-generation",
		"gemini-2.5-flash-image",
		"gemini-3-pro-image-preview",
	}
	for _, m := range imageModels {
		if strings.EqualFold(model, m) {
			return true
		}
	}
	return false
}

// --- OpenAI-compatible backend ---

var _ adkmodel.LLM = (*OpenAILLM)(nil)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIOption configures an OpenAILLM instance.
type OpenAIOption func(*OpenAILLM)

// WithOpenAIBaseURL points the adapter at an OpenAI-compatible endpoint
// other than the real OpenAI API (Ollama, LM Studio, a self-hosted gateway).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAILLM) { o.baseURL = url }
}

// WithOpenAIName sets the provider's display name (defaults to "openai").
func WithOpenAIName(name string) OpenAIOption {
	return func(o *OpenAILLM) { o.name = name }
}

// OpenAILLM speaks the OpenAI Chat Completions wire format. Every stage
// call is a single structured or vision-grounded completion, no tool use,
// so this adapter only carries text (and inline image) content through —
// unlike the ADK's general request shape, it never builds or parses
// function-call / tool messages.
type OpenAILLM struct {
	apiKey  string
	baseURL string
	name    string
	client  *http.Client
}

// NewOpenAILLM creates an OpenAI-compatible adapter.
func NewOpenAILLM(apiKey string, opts ...OpenAIOption) *OpenAILLM {
	llm := &OpenAILLM{
		apiKey:  apiKey,
		baseURL: openaiDefaultBaseURL,
		name:    "openai",
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(llm)
	}
	return llm
}

func (o *OpenAILLM) Name() string { return o.name }

// GenerateContent sends one chat completion request and yields exactly one
// response (streaming is not used by any stage in this pipeline).
func (o *OpenAILLM) GenerateContent(ctx context.Context, req *adkmodel.LLMRequest, stream bool) iter.Seq2[*adkmodel.LLMResponse, error] {
	return func(yield func(*adkmodel.LLMResponse, error) bool) {
		body := o.buildRequestBody(req)

		encoded, err := json.Marshal(body)
		if err != nil {
			yield(nil, fmt.Errorf("openai: failed to marshal request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(encoded))
		if err != nil {
			yield(nil, fmt.Errorf("openai: failed to create HTTP request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
		}

		emitLog(ctx, fmt.Sprintf("openai: calling model %s", req.Model))

		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("openai: HTTP request failed: %w", err))
			return
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			yield(nil, fmt.Errorf("openai: failed to read response body: %w", err))
			return
		}
		if httpResp.StatusCode != http.StatusOK {
			emitLog(ctx, fmt.Sprintf("openai error: status %d", httpResp.StatusCode))
			yield(nil, fmt.Errorf("openai: API returned status %d: %s", httpResp.StatusCode, string(respBody)))
			return
		}

		var apiResp openaiChatResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			yield(nil, fmt.Errorf("openai: failed to unmarshal response: %w", err))
			return
		}

		llmResp, err := convertOpenAIResponse(&apiResp)
		if err != nil {
			yield(nil, fmt.Errorf("openai: failed to convert response: %w", err))
			return
		}
		emitLog(ctx, "openai: response received")
		yield(llmResp, nil)
	}
}

// buildRequestBody converts an LLMRequest into an OpenAI chat completions
// body: a system message from the system instruction, then one message
// (optionally vision) per request content entry, carrying that entry's role.
func (o *OpenAILLM) buildRequestBody(req *adkmodel.LLMRequest) map[string]any {
	body := map[string]any{
		"model":  req.Model,
		"stream": false,
	}

	var messages []map[string]any
	if req.Config != nil && req.Config.SystemInstruction != nil {
		if text := extractText(req.Config.SystemInstruction); text != "" {
			messages = append(messages, map[string]any{"role": "system", "content": text})
		}
	}
	for _, content := range req.Contents {
		messages = append(messages, o.convertContent(content))
	}
	body["messages"] = messages

	if req.Config != nil {
		if req.Config.Temperature != nil {
			body["temperature"] = *req.Config.Temperature
		}
		if req.Config.TopP != nil {
			body["top_p"] = *req.Config.TopP
		}
		if req.Config.MaxOutputTokens > 0 {
			body["max_tokens"] = req.Config.MaxOutputTokens
		}
		if len(req.Config.StopSequences) > 0 {
			body["stop"] = req.Config.StopSequences
		}
	}

	return body
}

// convertContent renders one genai.Content as a single OpenAI message,
// joining multiple text parts and carrying inline images as vision content
// blocks — the request shapes stages actually build.
func (o *OpenAILLM) convertContent(content *genai.Content) map[string]any {
	role := openaiRole(content.Role)

	var textParts []string
	var blocks []map[string]any
	for _, part := range content.Parts {
		switch {
		case part.Text != "":
			textParts = append(textParts, part.Text)
		case part.InlineData != nil:
			blocks = append(blocks, map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url": fmt.Sprintf("data:%s;base64,%s", part.InlineData.MIMEType, base64.StdEncoding.EncodeToString(part.InlineData.Data)),
				},
			})
		}
	}

	text := strings.Join(textParts, "\n")
	if len(blocks) == 0 {
		return map[string]any{"role": role, "content": text}
	}
	if text != "" {
		blocks = append([]map[string]any{{"type": "text", "text": text}}, blocks...)
	}
	return map[string]any{"role": role, "content": blocks}
}

// convertOpenAIResponse converts an OpenAI chat response to an ADK LLMResponse.
func convertOpenAIResponse(resp *openaiChatResponse) (*adkmodel.LLMResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	choice := resp.Choices[0]
	content := &genai.Content{Role: genai.RoleModel}
	if choice.Message.Content != "" {
		content.Parts = append(content.Parts, genai.NewPartFromText(choice.Message.Content))
	}
	return &adkmodel.LLMResponse{Content: content, TurnComplete: true}, nil
}

// extractText concatenates all text parts from a Content.
func extractText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var parts []string
	for _, part := range content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func openaiRole(role string) string {
	switch role {
	case genai.RoleModel:
		return "assistant"
	case genai.RoleUser:
		return "user"
	default:
		return role
	}
}

type openaiChatResponse struct {
	Choices []openaiChoice `json:"choices"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
