// Package stages implements each stage contract from the registry: image
// evaluation, the strategy/style-guide/creative-expert creative block, style
// adaptation, prompt assembly, image generation, image assessment, and the
// on-demand caption stage.
package stages

import (
	"github.com/soochol/creativeflow/internal/executor"
	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/metrics"
	"github.com/soochol/creativeflow/internal/persistence"
)

// Config bundles the external collaborators every stage needs: the LLM/VLM
// text and vision models, the image generator, the bounded worker pool for
// blocking calls, the consistency-metrics embedder, and the run store for
// stages that persist their own artifacts (caption, image generation).
type Config struct {
	Text     llmprovider.TextModel
	Vision   llmprovider.VisionModel
	Image    llmprovider.ImageModel
	Pool     *executor.WorkerPool
	Embedder metrics.Embedder
	Store    *persistence.RunStore
	Retry    llmprovider.RetryPolicy
}
