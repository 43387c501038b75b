// Package transporthttp is the thin HTTP+SSE transport layer: it parses and
// validates run submissions, drives the Executor in the background, streams
// progress over SSE with Last-Event-ID replay, and exposes the preset CRUD
// surface. None of this is Executor or stage logic — it is wiring.
package transporthttp

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/creativeflow/internal/executor"
	"github.com/soochol/creativeflow/internal/persistence"
	"github.com/soochol/creativeflow/internal/preset"
	"github.com/soochol/creativeflow/internal/progress"
)

// Server wires the Executor, preset repository, and a per-run progress bus
// registry into chi routes.
type Server struct {
	exec  *executor.Executor
	repo  preset.Repository
	store *persistence.RunStore

	buses *busRegistry
}

func NewServer(exec *executor.Executor, repo preset.Repository, store *persistence.RunStore, buses *busRegistry) *Server {
	return &Server{exec: exec, repo: repo, store: store, buses: buses}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/{id}/events", s.streamRunEvents)
			r.Post("/{id}/caption", s.requestCaption)
		})
		r.Route("/presets", func(r chi.Router) {
			r.Post("/", s.createPreset)
			r.Get("/", s.listPresets)
			r.Get("/{id}", s.getPreset)
			r.Put("/{id}", s.updatePreset)
			r.Delete("/{id}", s.deletePreset)
			r.Post("/save-from-result", s.saveFromResult)
		})
	})

	return r
}

// busRegistry holds one progress.Bus per in-flight or recently-completed
// run, keyed by run_id, the minimal "per-run-scoped" lookup RunAsync's
// busFor callback and the SSE handler both need.
type busRegistry struct {
	mu    sync.Mutex
	buses map[string]*progress.Bus
}

func NewBusRegistry() *busRegistry {
	return &busRegistry{buses: make(map[string]*progress.Bus)}
}

// GetOrCreate returns the bus for runID, creating one if absent. Passed to
// executor.New as the busFor callback.
func (r *busRegistry) GetOrCreate(runID string) *progress.Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[runID]
	if !ok {
		b = progress.NewBus(runID)
		r.buses[runID] = b
	}
	return b
}
