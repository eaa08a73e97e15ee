package web

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/hpungsan/reel/internal/clip"
	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/ops"
	"github.com/hpungsan/reel/internal/project"
)

// Handlers contains HTTP route handlers for the storyboard viewer.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /projects: saved projects, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.List(h.db, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	current, err := ops.GetCurrent(h.db)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Projects",
			Version: h.renderer.version,
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		CurrentID:  current.ProjectID,
	})
}

// HandleDetail handles GET /projects/{id}: the storyboard sheet of one project.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("project ID is required"))
		return
	}

	out, err := ops.Fetch(h.db, ops.FetchInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	p := out.Project
	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   p.Title,
			Version: h.renderer.version,
		},
		Project:      p,
		Current:      out.Current,
		Budget:       clip.BudgetOf(p.Clips, h.cfg.MaxDurationSeconds),
		RenderedHTML: renderMarkdown(project.Markdown(p, h.cfg.MaxDurationSeconds)),
	})
}

// HandleDelete handles DELETE /projects/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("project ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/projects")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/projects", http.StatusFound)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
