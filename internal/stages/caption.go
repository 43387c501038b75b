package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soochol/creativeflow/internal/executor"
	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/progress"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// CaptionRequest is the payload run_single_stage passes for the "caption"
// target, attached to ctx by the executor via executor.WithPayload.
type CaptionRequest struct {
	ImageIndex           int
	Settings             pipeline.CaptionSettings
	RegenerateWriterOnly bool
}

// Caption implements the on-demand, per-image caption mini-pipeline:
// Analyst produces a structured brief, Writer turns it into caption text.
// One Caption instance is shared across every run_single_stage("caption")
// invocation; the per-call request travels on ctx, not on the struct.
type Caption struct {
	Cfg Config
}

func (s *Caption) Run(ctx context.Context, pctx *pipeline.Context) error {
	req, ok := executor.PayloadFromContext(ctx).(CaptionRequest)
	if !ok {
		return &pipeline.PreconditionError{Stage: "caption", Field: "payload", Msg: "missing CaptionRequest"}
	}

	if req.ImageIndex < 0 || req.ImageIndex >= len(pctx.GeneratedImageResults) {
		return &pipeline.PreconditionError{Stage: "caption", Field: "image_index", Msg: "out of range"}
	}
	if pctx.GeneratedImageResults[req.ImageIndex].Status != "success" {
		return &pipeline.PreconditionError{Stage: "caption", Field: "image_index", Msg: "image generation did not succeed for this index"}
	}

	imageID := fmt.Sprintf("variant_%d", req.ImageIndex)
	prevVersion, err := s.Cfg.Store.LatestCaptionVersion(pctx.RunID, imageID)
	if err != nil {
		return err
	}
	newVersion := prevVersion + 1

	var (
		brief pipeline.CaptionBrief
		text  string
	)

	if req.RegenerateWriterOnly && prevVersion >= 0 {
		raw, err := s.Cfg.Store.ReadCaptionBrief(pctx.RunID, imageID, prevVersion)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &brief); err != nil {
			return fmt.Errorf("decode cached brief: %w", err)
		}
	} else {
		b, err := s.runAnalyst(ctx, pctx, req)
		if err != nil {
			return &pipeline.ProviderError{Provider: s.Cfg.Text.Name(), Err: err}
		}
		brief = b
	}

	text, err = s.runWriter(ctx, pctx, brief)
	if err != nil {
		return &pipeline.ProviderError{Provider: s.Cfg.Text.Name(), Err: err}
	}

	briefJSON, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal brief: %w", err)
	}
	result := pipeline.CaptionResult{Version: newVersion, Text: text, Brief: brief}
	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal caption result: %w", err)
	}

	if err := s.Cfg.Store.WriteCaptionVersion(pctx.RunID, imageID, newVersion, text, briefJSON, resultJSON); err != nil {
		return err
	}

	if bus := progress.FromContext(ctx); bus != nil {
		bus.Publish(progress.Event{Type: progress.CaptionAdded, ImageIndex: req.ImageIndex, Version: newVersion})
	}

	return nil
}

// resolveFinalInstructions implements resolve_final_instructions: a pure
// function that computes directive strings in code so the Analyst prompt
// never embeds conditional narrative.
func resolveFinalInstructions(settings pipeline.CaptionSettings, strat pipeline.StrategyRecord, brandVoice string) pipeline.ResolvedCaptionInstructions {
	tone := settings.Tone
	if tone == "" {
		// Tactical per-run marketing voice outranks the brand kit's voice
		// for tone auto-inference.
		if strat.TargetVoice != "" {
			tone = strat.TargetVoice
		} else {
			tone = brandVoice
		}
	}
	cta := settings.CallToAction
	if cta == "" {
		cta = strat.TargetObjective
	}
	emojis := true
	if settings.IncludeEmojis != nil {
		emojis = *settings.IncludeEmojis
	}
	hashtags := settings.HashtagStrategy
	if hashtags == "" {
		hashtags = "moderate"
	}
	return pipeline.ResolvedCaptionInstructions{Tone: tone, CTA: cta, Emojis: emojis, Hashtags: hashtags}
}

func (s *Caption) runAnalyst(ctx context.Context, pctx *pipeline.Context, req CaptionRequest) (pipeline.CaptionBrief, error) {
	var strat pipeline.StrategyRecord
	var concept pipeline.VisualConcept
	if req.ImageIndex < len(pctx.SuggestedMarketingStrategies) {
		strat = pctx.SuggestedMarketingStrategies[req.ImageIndex]
	}
	if req.ImageIndex < len(pctx.GeneratedImagePrompts) {
		concept = pctx.GeneratedImagePrompts[req.ImageIndex].VisualConcept
	}

	brandVoice := ""
	if pctx.BrandKit != nil {
		brandVoice = pctx.BrandKit.BrandVoiceDescription
	}
	instr := resolveFinalInstructions(req.Settings, strat, brandVoice)

	userPrompt := fmt.Sprintf(
		"Platform: %s\nAudience: %s\nVisual concept: %s | %s\nTone: %s\nCall to action: %s\nInclude emojis: %v\nHashtag strategy: %s\n",
		pctx.PlatformName, strat.TargetAudience, concept.CompositionAndFraming, concept.VisualStyle,
		instr.Tone, instr.CTA, instr.Emojis, instr.Hashtags,
	)

	var brief pipeline.CaptionBrief
	err := llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Text.Complete(ctx, prompts.CaptionAnalystSystemPrompt, userPrompt)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage("caption:analyst", pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &brief)
	})
	return brief, err
}

func (s *Caption) runWriter(ctx context.Context, pctx *pipeline.Context, brief pipeline.CaptionBrief) (string, error) {
	briefJSON, err := json.Marshal(brief)
	if err != nil {
		return "", err
	}

	var text string
	err = llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		out, usage, callErr := s.Cfg.Text.Complete(ctx, prompts.CaptionWriterSystemPrompt, string(briefJSON))
		if callErr != nil {
			return callErr
		}
		text = out
		pctx.RecordUsage("caption:writer", pipeline.TokenUsage(usage))
		return nil
	})
	return text, err
}
