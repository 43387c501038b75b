package transporthttp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/progress"
	"github.com/soochol/creativeflow/internal/stages"
	"github.com/soochol/creativeflow/internal/validate"
)

// submitRun validates the request, seeds a Context, persists the logo if
// one was attached, and launches the Executor in the background, returning
// the run_id immediately so the caller can subscribe to its event stream.
func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	req, err := validate.Validate(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := r.Header.Get("X-User-ID")
	runID := pipeline.GenerateID("run")
	pctx := req.ToContextSeed(runID)

	if req.BrandKit != nil && req.BrandKit.LogoFileBase64 != "" {
		logoBytes, err := base64.StdEncoding.DecodeString(req.BrandKit.LogoFileBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "brand_kit.logo_file_base64: "+err.Error())
			return
		}
		path, err := s.store.WriteLogo(runID, logoBytes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		pctx.BrandKit.SavedLogoPathInRunDir = path
	}

	go func() {
		ctx := context.Background()
		if err := s.exec.RunAsync(ctx, pctx, userID); err != nil {
			slog.Error("run failed", "run_id", runID, "err", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"run_id": runID})
}

// streamRunEvents streams a run's progress events via SSE, replaying from
// Last-Event-ID when the client reconnects.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var afterSeq int64
	if idStr := r.Header.Get("Last-Event-ID"); idStr != "" {
		if n, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			afterSeq = n
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bus := s.buses.GetOrCreate(runID)
	events := bus.Subscribe(r.Context(), afterSeq, 32)

	for ev := range events {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
		flusher.Flush()
		if ev.Type == progress.RunCompleted || ev.Type == progress.RunFailed {
			return
		}
	}
}

// requestCaption implements the caption single-stage entry point:
// run_single_stage(ctx, "caption", {image_index, settings, regenerate_writer_only?}).
func (s *Server) requestCaption(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var body struct {
		ImageIndex           int                      `json:"image_index"`
		Settings             pipeline.CaptionSettings `json:"settings"`
		RegenerateWriterOnly bool                     `json:"regenerate_writer_only"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}

	req := stages.CaptionRequest{
		ImageIndex:           body.ImageIndex,
		Settings:             body.Settings,
		RegenerateWriterOnly: body.RegenerateWriterOnly,
	}

	if err := s.exec.RunSingleStage(r.Context(), runID, "caption", req); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func errStatus(err error) int {
	switch err.(type) {
	case *pipeline.PreconditionError, *pipeline.ValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
