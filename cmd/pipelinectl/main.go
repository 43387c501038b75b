// Command pipelinectl serves the creative pipeline HTTP API and offers a
// one-shot "run" subcommand for driving a request from the command line,
// mirroring the teacher's cmd/upal entry point split into cobra subcommands.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/spf13/cobra"

	"github.com/soochol/creativeflow/internal/config"
	"github.com/soochol/creativeflow/internal/executor"
	"github.com/soochol/creativeflow/internal/llmprovider"
	"github.com/soochol/creativeflow/internal/metrics"
	"github.com/soochol/creativeflow/internal/persistence"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/preset"
	"github.com/soochol/creativeflow/internal/progress"
	"github.com/soochol/creativeflow/internal/stages"
	"github.com/soochol/creativeflow/internal/transporthttp"
	"github.com/soochol/creativeflow/internal/validate"
)

var configPath string

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	root := &cobra.Command{
		Use:   "pipelinectl",
		Short: "creativeflow pipeline server and CLI driver",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to ./config.yaml, falling back to built-in defaults)")

	root.AddCommand(serveCmd(), runCmd())

	if err := root.Execute(); err != nil {
		slog.Error("pipelinectl failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP+SSE API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			srv, err := buildServer(cfg)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			slog.Info("pipelinectl serving", "addr", addr)
			return http.ListenAndServe(addr, srv.Handler())
		},
	}
}

func runCmd() *cobra.Command {
	var requestPath string
	var userID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "drive one run synchronously from a request JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			body, err := os.ReadFile(requestPath)
			if err != nil {
				return fmt.Errorf("read request file: %w", err)
			}
			req, err := validate.Validate(body)
			if err != nil {
				return fmt.Errorf("validate request: %w", err)
			}

			runID := pipeline.GenerateID("run")
			bus := progress.NewBus(runID)
			busFor := func(string) *progress.Bus { return bus }

			exec, _, err := buildExecutor(cfg, busFor)
			if err != nil {
				return fmt.Errorf("build executor: %w", err)
			}

			pctx := req.ToContextSeed(runID)

			done := make(chan struct{})
			go printProgress(bus, done)

			if err := exec.RunAsync(context.Background(), pctx, userID); err != nil {
				<-done
				return fmt.Errorf("run failed: %w", err)
			}
			<-done
			return nil
		},
	}
	cmd.Flags().StringVar(&requestPath, "request", "", "path to a run request JSON file")
	cmd.Flags().StringVar(&userID, "user", "cli", "user id to attribute the run to")
	cmd.MarkFlagRequired("request")
	return cmd
}

func printProgress(bus *progress.Bus, done chan struct{}) {
	defer close(done)
	events := bus.Subscribe(context.Background(), 0, 32)
	for ev := range events {
		data, _ := json.Marshal(ev)
		fmt.Println(string(data))
		if ev.Type == progress.RunCompleted || ev.Type == progress.RunFailed {
			return
		}
	}
}

// buildServer wires an HTTP server whose bus registry hands each run a
// fresh Bus on first touch, the normal multi-run serving path.
func buildServer(cfg *config.Config) (*transporthttp.Server, error) {
	buses := transporthttp.NewBusRegistry()
	exec, store, err := buildExecutor(cfg, buses.GetOrCreate)
	if err != nil {
		return nil, err
	}
	repo, err := buildPresetRepository(cfg)
	if err != nil {
		return nil, err
	}
	return transporthttp.NewServer(exec, repo, store, buses), nil
}

func buildExecutor(cfg *config.Config, busFor func(string) *progress.Bus) (*executor.Executor, *persistence.RunStore, error) {
	store := persistence.NewRunStore(cfg.Pipeline.RunsRoot)

	repo, err := buildPresetRepository(cfg)
	if err != nil {
		return nil, nil, err
	}
	loader := preset.NewLoader(repo)

	text, vision, image, embedder, retry, err := buildModels(cfg)
	if err != nil {
		return nil, nil, err
	}

	pool := executor.NewWorkerPool(cfg.Pipeline.WorkerPoolSize)
	stageCfg := stages.Config{
		Text:     text,
		Vision:   vision,
		Image:    image,
		Pool:     pool,
		Embedder: embedder,
		Store:    store,
		Retry:    retry,
	}

	stageImpls := map[string]executor.Stage{
		"image_eval":       &stages.ImageEval{Cfg: stageCfg},
		"strategy":         &stages.Strategy{Cfg: stageCfg},
		"style_guide":      &stages.StyleGuide{Cfg: stageCfg},
		"creative_expert":  &stages.CreativeExpert{Cfg: stageCfg},
		"style_adaptation": &stages.StyleAdaptation{Cfg: stageCfg},
		"prompt_assembly":  &stages.PromptAssembly{Cfg: stageCfg},
		"image_generation": &stages.ImageGeneration{Cfg: stageCfg},
		"image_assessment": &stages.ImageAssessment{Cfg: stageCfg},
		"caption":          &stages.Caption{Cfg: stageCfg},
	}

	exec := executor.New(loader, store, busFor, stageImpls)
	return exec, store, nil
}

func buildPresetRepository(cfg *config.Config) (preset.Repository, error) {
	mem := preset.NewMemoryRepository()
	if cfg.Database.URL == "" {
		return mem, nil
	}
	pool, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB := preset.NewSQLDB(pool)
	if err := sqlDB.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate presets table: %w", err)
	}
	return preset.NewPersistentRepository(mem, sqlDB), nil
}

func buildModels(cfg *config.Config) (llmprovider.TextModel, llmprovider.VisionModel, llmprovider.ImageModel, metrics.Embedder, llmprovider.RetryPolicy, error) {
	text, err := buildTextModel(cfg, cfg.Pipeline.TextProvider)
	if err != nil {
		return nil, nil, nil, nil, llmprovider.RetryPolicy{}, err
	}
	vision, err := buildVisionModel(cfg, cfg.Pipeline.VisionProvider)
	if err != nil {
		return nil, nil, nil, nil, llmprovider.RetryPolicy{}, err
	}
	image, err := buildImageModel(cfg, cfg.Pipeline.ImageProvider)
	if err != nil {
		return nil, nil, nil, nil, llmprovider.RetryPolicy{}, err
	}

	var embedder metrics.Embedder
	if cfg.Pipeline.EmbedderProvider != "" {
		slog.Warn("embedder_provider configured but no embedder backend is wired; consistency metrics will degrade to diagnostics", "provider", cfg.Pipeline.EmbedderProvider)
	}

	retry := llmprovider.RetryPolicy{
		MaxRetries:     cfg.Pipeline.Retry.MaxRetries,
		InitialDelay:   msDuration(cfg.Pipeline.Retry.InitialDelayMs),
		BackoffFactor:  cfg.Pipeline.Retry.BackoffFactor,
		MaxDelay:       msDuration(cfg.Pipeline.Retry.MaxDelayMs),
	}
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = llmprovider.DefaultRetryPolicy
	}

	return text, vision, image, embedder, retry, nil
}

func providerConfig(cfg *config.Config, name string) (config.ProviderConfig, error) {
	pc, ok := cfg.Providers[name]
	if !ok {
		return config.ProviderConfig{}, fmt.Errorf("provider %q not configured", name)
	}
	return pc, nil
}

func familyFor(pc config.ProviderConfig) llmprovider.Family {
	if llmprovider.Family(pc.Family) == llmprovider.FamilyNarrativeFirst {
		return llmprovider.FamilyNarrativeFirst
	}
	return llmprovider.FamilyLiteralDirective
}

func buildTextModel(cfg *config.Config, name string) (llmprovider.TextModel, error) {
	pc, err := providerConfig(cfg, name)
	if err != nil {
		return nil, err
	}
	llm, ok := llmprovider.BuildLLM(name, pc)
	if !ok {
		return nil, fmt.Errorf("no factory for text provider %q (type %q)", name, pc.Type)
	}
	return llmprovider.NewTextModel(llm, pc.Model, familyFor(pc)), nil
}

func buildVisionModel(cfg *config.Config, name string) (llmprovider.VisionModel, error) {
	pc, err := providerConfig(cfg, name)
	if err != nil {
		return nil, err
	}
	llm, ok := llmprovider.BuildLLM(name, pc)
	if !ok {
		return nil, fmt.Errorf("no factory for vision provider %q (type %q)", name, pc.Type)
	}
	return llmprovider.NewVisionModel(llm, pc.Model, familyFor(pc)), nil
}

func buildImageModel(cfg *config.Config, name string) (llmprovider.ImageModel, error) {
	pc, err := providerConfig(cfg, name)
	if err != nil {
		return nil, err
	}
	llm, ok := llmprovider.BuildLLM(name, pc)
	if !ok {
		return nil, fmt.Errorf("no factory for image provider %q (type %q)", name, pc.Type)
	}
	return llmprovider.NewImageModel(llm, pc.Model, familyFor(pc)), nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
