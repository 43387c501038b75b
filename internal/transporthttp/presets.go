package transporthttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/preset"
)

func (s *Server) createPreset(w http.ResponseWriter, r *http.Request) {
	var p preset.Preset
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.UserID = r.Header.Get("X-User-ID")
	if err := s.repo.Create(r.Context(), &p); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	presetType := pipeline.PresetType(r.URL.Query().Get("type"))
	presets, err := s.repo.List(r.Context(), userID, presetType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) getPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.Header.Get("X-User-ID")
	p, err := s.repo.Get(r.Context(), id, userID)
	if err != nil {
		writeError(w, presetErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p preset.Preset
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.ID = id
	p.UserID = r.Header.Get("X-User-ID")
	if err := s.repo.Update(r.Context(), &p); err != nil {
		writeError(w, presetErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.Header.Get("X-User-ID")
	if err := s.repo.Delete(r.Context(), id, userID); err != nil {
		writeError(w, presetErrStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveFromResult builds a STYLE_RECIPE preset from a completed run's chosen
// variant: its visual_concept, strategy, style_guidance, and
// final_assembled_prompt, read back from the persisted run directory.
func (s *Server) saveFromResult(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RunID      string `json:"run_id"`
		ImageIndex int    `json:"image_index"`
		Name       string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pctx, err := s.readRunForSave(body.RunID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if body.ImageIndex < 0 || body.ImageIndex >= len(pctx.GeneratedImagePrompts) ||
		body.ImageIndex >= len(pctx.SuggestedMarketingStrategies) ||
		body.ImageIndex >= len(pctx.StyleGuidanceSets) ||
		body.ImageIndex >= len(pctx.FinalAssembledPrompts) {
		writeError(w, http.StatusBadRequest, "image_index out of range for this run's artifacts")
		return
	}

	recipe := &preset.StyleRecipe{
		VisualConcept: pctx.GeneratedImagePrompts[body.ImageIndex].VisualConcept,
		Strategy:      pctx.SuggestedMarketingStrategies[body.ImageIndex],
		StyleGuidance: pctx.StyleGuidanceSets[body.ImageIndex],
		FinalPrompt:   pctx.FinalAssembledPrompts[body.ImageIndex],
	}
	if body.ImageIndex < len(pctx.GeneratedImageResults) {
		recipe.ReferenceImagePath = pctx.GeneratedImageResults[body.ImageIndex].ImagePath
	}

	p := &preset.Preset{
		Name:            body.Name,
		UserID:          r.Header.Get("X-User-ID"),
		Type:            pipeline.PresetStyleRecipe,
		StyleRecipeData: recipe,
		BrandKit:        pctx.BrandKit,
	}
	if err := s.repo.Create(r.Context(), p); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) readRunForSave(runID string) (*pipeline.Context, error) {
	return s.store.ReadMetadata(runID)
}

func presetErrStatus(err error) int {
	switch err.(type) {
	case *preset.NotFound:
		return http.StatusNotFound
	case *preset.Forbidden:
		return http.StatusForbidden
	case *pipeline.PresetVersionConflict:
		return http.StatusConflict
	case *pipeline.ValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
