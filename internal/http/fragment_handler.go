package http

import (
	"errors"
	"net/http"

	"github.com/fjod/tranex/internal/fragment"
	"github.com/fjod/tranex/internal/preferences"
	"github.com/go-chi/chi/v5"
)

type FragmentHandler struct {
	loader *fragment.Loader
	prefs  *preferences.Service
}

func NewFragmentHandler(loader *fragment.Loader, prefs *preferences.Service) *FragmentHandler {
	return &FragmentHandler{loader: loader, prefs: prefs}
}

// Get serves /fragments/{name}. Without ?lang= the session's language is used.
func (h *FragmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lang := r.URL.Query().Get("lang")
	if lang == "" && h.prefs != nil {
		lang = string(h.prefs.Get(ctx, getSessionID(ctx), false).Language)
	}

	html, err := h.loader.Load(ctx, chi.URLParam(r, "name"), lang)
	switch {
	case errors.Is(err, fragment.ErrNotFound):
		respondError(w, http.StatusNotFound, "fragment_not_found", "fragment not found")
	case errors.Is(err, fragment.ErrUnsupportedLanguage):
		respondError(w, http.StatusBadRequest, "unsupported_language", err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	default:
		respondHTML(w, http.StatusOK, html)
	}
}
