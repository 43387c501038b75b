package stages

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/progress"
)

// ImageGeneration implements the Image Generation stage: one provider call
// per final assembled prompt, fanned out on the worker pool, with
// independent per-variant failure handling so one bad generation does not
// abort its siblings.
type ImageGeneration struct {
	Cfg Config
}

func (s *ImageGeneration) Run(ctx context.Context, pctx *pipeline.Context) error {
	n := len(pctx.FinalAssembledPrompts)
	results := make([]pipeline.GeneratedImageResult, n)

	g, gCtx := errgroup.WithContext(ctx)
	for i, prompt := range pctx.FinalAssembledPrompts {
		i, prompt := i, prompt
		g.Go(func() error {
			return s.Cfg.Pool.Do(gCtx, func() error {
				results[i] = s.oneImage(gCtx, pctx, i, prompt)
				return nil
			})
		})
	}
	_ = g.Wait()

	pctx.GeneratedImageResults = results

	successes := 0
	for _, r := range results {
		if r.Status == "success" {
			successes++
		}
	}
	if successes == 0 && n > 0 {
		return &pipeline.ContractViolation{Stage: "image_generation", Msg: "all variants failed to generate"}
	}
	return nil
}

func (s *ImageGeneration) oneImage(ctx context.Context, pctx *pipeline.Context, i int, prompt string) pipeline.GeneratedImageResult {
	mode, refPath := s.selectReference(pctx)

	var refBytes []byte
	if refPath != "" {
		b, err := os.ReadFile(refPath)
		if err != nil {
			return pipeline.GeneratedImageResult{Status: "failed", Error: err.Error(), GenerationMode: mode}
		}
		refBytes = b
	}

	var (
		pngBytes []byte
		usage    llmprovider.Usage
	)
	err := llmprovider.WithRetry(ctx, s.Cfg.Retry, func() error {
		out, u, callErr := s.Cfg.Image.GenerateImage(ctx, prompt, refBytes)
		if callErr != nil {
			return callErr
		}
		pngBytes, usage = out, u
		return nil
	})
	if err != nil {
		return pipeline.GeneratedImageResult{Status: "failed", Error: err.Error(), GenerationMode: mode}
	}

	path, err := s.Cfg.Store.WriteVariantImage(pctx.RunID, i, mode != pipeline.GenModeTextToImage, "v1", pngBytes)
	if err != nil {
		return pipeline.GeneratedImageResult{Status: "failed", Error: err.Error(), GenerationMode: mode}
	}

	tok := pipeline.TokenUsage(usage)
	pctx.RecordUsage(fmt.Sprintf("image_generation:%d", i), tok)

	if bus := progress.FromContext(ctx); bus != nil {
		bus.Publish(progress.Event{Type: progress.ImageGenerated, ImageIndex: i, ImagePath: path, Status: "success"})
	}

	return pipeline.GeneratedImageResult{
		ImagePath:      path,
		Status:         "success",
		TokenUsage:     &tok,
		GenerationMode: mode,
	}
}

// selectReference applies the reference-image selection policy: a
// user-supplied image wins, then a brand logo, else pure text-to-image.
func (s *ImageGeneration) selectReference(pctx *pipeline.Context) (pipeline.GenerationMode, string) {
	if pctx.ImageReference != nil && pctx.ImageReference.SavedPath != "" {
		return pipeline.GenModeUserEdit, pctx.ImageReference.SavedPath
	}
	if pctx.BrandKit != nil && pctx.BrandKit.SavedLogoPathInRunDir != "" {
		return pipeline.GenModeLogoScene, pctx.BrandKit.SavedLogoPathInRunDir
	}
	return pipeline.GenModeTextToImage, ""
}
