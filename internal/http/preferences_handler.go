package http

import (
	"errors"
	"net/http"

	"github.com/fjod/tranex/internal/preferences"
)

type PreferencesHandler struct {
	prefs *preferences.Service
}

func NewPreferencesHandler(prefs *preferences.Service) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs}
}

type SetLanguageRequestDTO struct {
	Language string `json:"language"`
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondJSON(w, http.StatusOK, h.prefs.Get(ctx, getSessionID(ctx), prefersDark(r)))
}

func (h *PreferencesHandler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := getSessionID(ctx)
	h.prefs.ToggleTheme(ctx, sid, prefersDark(r))
	respondJSON(w, http.StatusOK, h.prefs.Get(ctx, sid, prefersDark(r)))
}

func (h *PreferencesHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SetLanguageRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sid := getSessionID(ctx)
	if err := h.prefs.SetLanguage(ctx, sid, preferences.Language(req.Language)); err != nil {
		if errors.Is(err, preferences.ErrUnsupportedLanguage) {
			respondError(w, http.StatusBadRequest, "unsupported_language", "language must be en or ar")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, h.prefs.Get(ctx, sid, prefersDark(r)))
}

// prefersDark reads the browser's color scheme client hint.
func prefersDark(r *http.Request) bool {
	return r.Header.Get("Sec-CH-Prefers-Color-Scheme") == "dark"
}
