package stages

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/metrics"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// ImageAssessment implements the Image Assessment stage: a VLM critique of
// each generated image against its source visual concept, plus — for
// STYLE_RECIPE runs only — consistency metrics against the recipe's
// reference image.
type ImageAssessment struct {
	Cfg Config
}

func (s *ImageAssessment) Run(ctx context.Context, pctx *pipeline.Context) error {
	n := len(pctx.GeneratedImageResults)
	results := make([]pipeline.ImageAssessment, n)
	errs := make([]error, n)

	var referenceBytes []byte
	isStyleRecipe := pctx.PresetType == pipeline.PresetStyleRecipe && pctx.PresetData != nil && pctx.PresetData.ReferenceImagePath != ""
	if isStyleRecipe {
		b, err := os.ReadFile(pctx.PresetData.ReferenceImagePath)
		if err == nil {
			referenceBytes = b
		} else {
			pctx.AddDiagnostic(pipeline.Diagnostic{Stage: "image_assessment", Kind: "optional_failure", Message: "reference image unreadable: " + err.Error()})
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i, gen := range pctx.GeneratedImageResults {
		i, gen := i, gen
		g.Go(func() error {
			return s.Cfg.Pool.Do(gCtx, func() error {
				if gen.Status != "success" {
					return nil
				}
				assessment, err := s.oneAssessment(gCtx, pctx, i, gen, referenceBytes)
				if err != nil {
					errs[i] = err
					return nil
				}
				results[i] = assessment
				return nil
			})
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			pctx.AddDiagnostic(pipeline.Diagnostic{
				Stage:   "image_assessment",
				Kind:    "optional_failure",
				Message: fmt.Sprintf("assessment[%d]: %v", i, err),
			})
		}
	}

	pctx.ImageAssessments = results
	return nil
}

func (s *ImageAssessment) oneAssessment(ctx context.Context, pctx *pipeline.Context, i int, gen pipeline.GeneratedImageResult, referenceBytes []byte) (pipeline.ImageAssessment, error) {
	imgBytes, err := os.ReadFile(gen.ImagePath)
	if err != nil {
		return pipeline.ImageAssessment{}, err
	}

	var concept pipeline.VisualConcept
	if i < len(pctx.GeneratedImagePrompts) {
		concept = pctx.GeneratedImagePrompts[i].VisualConcept
	}
	userPrompt := fmt.Sprintf("Intended concept: %s | %s | %s", concept.CompositionAndFraming, concept.ColorPalette, concept.VisualStyle)

	var assessment pipeline.ImageAssessment
	err = llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		text, usage, callErr := s.Cfg.Vision.CompleteWithImage(ctx, prompts.ImageAssessmentSystemPrompt, userPrompt, imgBytes)
		if callErr != nil {
			return callErr
		}
		pctx.RecordUsage(fmt.Sprintf("image_assessment:%d", i), pipeline.TokenUsage(usage))
		return llmprovider.DecodeStructured(text, &assessment)
	})
	if err != nil {
		return pipeline.ImageAssessment{}, err
	}

	if referenceBytes != nil {
		metricsResult, mErr := metrics.Compute(ctx, s.Cfg.Embedder, imgBytes, referenceBytes)
		if mErr != nil {
			pctx.AddDiagnostic(pipeline.Diagnostic{
				Stage:   "image_assessment",
				Kind:    "optional_failure",
				Message: fmt.Sprintf("consistency_metrics[%d]: %v", i, mErr),
			})
		} else {
			cm := pipeline.ConsistencyMetrics(*metricsResult)
			assessment.ConsistencyMetrics = &cm
			pctx.GeneratedImageResults[i].ConsistencyMetrics = &cm
		}
	}

	return assessment, nil
}
