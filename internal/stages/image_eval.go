package stages

import (
	"context"
	"os"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// ImageEval implements the Image Evaluation stage: optional logo analysis
// followed by minimal or detailed subject analysis, depending on what
// inputs are present.
type ImageEval struct {
	Cfg Config
}

func (s *ImageEval) Run(ctx context.Context, pctx *pipeline.Context) error {
	if pctx.BrandKit != nil && pctx.BrandKit.SavedLogoPathInRunDir != "" && pctx.BrandKit.LogoAnalysis == nil {
		if err := s.analyzeLogo(ctx, pctx); err != nil {
			// Non-fatal: logo analysis failures are recorded and the stage proceeds.
			pctx.AddDiagnostic(pipeline.Diagnostic{
				Stage:   "image_eval",
				Kind:    "optional_failure",
				Message: err.Error(),
			})
		}
	}

	if pctx.ImageReference == nil {
		// No reference image: nothing further for this stage to analyze. A
		// minimal result still satisfies the produced_outputs predicate.
		pctx.ImageAnalysisResult = &pipeline.ImageAnalysisResult{}
		return nil
	}

	detailed := pctx.ImageReference.Instruction != "" || pctx.Prompt != ""
	if detailed {
		return s.analyzeDetailed(ctx, pctx)
	}
	return s.analyzeMinimal(ctx, pctx)
}

func (s *ImageEval) analyzeLogo(ctx context.Context, pctx *pipeline.Context) error {
	imgBytes, err := os.ReadFile(pctx.BrandKit.SavedLogoPathInRunDir)
	if err != nil {
		return err
	}

	var analysis pipeline.LogoAnalysis
	err = llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Vision.CompleteWithImage(ctx, prompts.LogoAnalysisSystemPrompt, "Analyze this logo.", imgBytes)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage("image_eval:logo", pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &analysis)
	})
	if err != nil {
		return err
	}
	pctx.BrandKit.LogoAnalysis = &analysis
	return nil
}

func (s *ImageEval) analyzeMinimal(ctx context.Context, pctx *pipeline.Context) error {
	imgBytes, err := os.ReadFile(pctx.ImageReference.SavedPath)
	if err != nil {
		return &pipeline.PreconditionError{Stage: "image_eval", Field: "image_reference", Msg: err.Error()}
	}

	var result pipeline.ImageAnalysisResult
	err = llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Vision.CompleteWithImage(ctx, prompts.ImageEvalMinimalSystemPrompt, "Identify the main subject.", imgBytes)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage("image_eval", pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &result)
	})
	if err != nil {
		return &pipeline.ProviderError{Provider: s.Cfg.Vision.Name(), Err: err}
	}
	pctx.ImageAnalysisResult = &result
	return nil
}

func (s *ImageEval) analyzeDetailed(ctx context.Context, pctx *pipeline.Context) error {
	imgBytes, err := os.ReadFile(pctx.ImageReference.SavedPath)
	if err != nil {
		return &pipeline.PreconditionError{Stage: "image_eval", Field: "image_reference", Msg: err.Error()}
	}

	userPrompt := pctx.ImageReference.Instruction
	if userPrompt == "" {
		userPrompt = pctx.Prompt
	}

	var result pipeline.ImageAnalysisResult
	err = llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Vision.CompleteWithImage(ctx, prompts.ImageEvalDetailedSystemPrompt, userPrompt, imgBytes)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage("image_eval", pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &result)
	})
	if err != nil {
		return &pipeline.ProviderError{Provider: s.Cfg.Vision.Name(), Err: err}
	}
	result.Detailed = true
	pctx.ImageAnalysisResult = &result
	return nil
}
