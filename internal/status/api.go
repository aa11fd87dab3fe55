package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fschwaiger/cubetracker/internal/action"
	"github.com/fschwaiger/cubetracker/internal/journal"
)

// SetRegistry is the part of action.Registry the API edits.
type SetRegistry interface {
	Names() []string
	Get(name string) (action.Set, bool)
	Active() (string, action.Set)
	SetActive(name string) error
	Upsert(name string, s action.Set) error
	Delete(name string) error
}

// SettingsPatch holds the settings that can change while running. Nil
// fields are left alone.
type SettingsPatch struct {
	TemplateTargetFile *string `json:"template_target_file,omitempty"`
	LogLevel           *string `json:"log_level,omitempty"`
}

// SettingsUpdater validates, applies and saves a settings patch.
type SettingsUpdater interface {
	PatchSettings(p SettingsPatch) error
}

// JournalReader lists recent orientation changes.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

const defaultJournalLimit = 50

// API serves action set and settings edits next to the status feed.
// settings and journal may be nil; their routes then answer 404.
type API struct {
	sets     SetRegistry
	settings SettingsUpdater
	journal  JournalReader
}

// NewAPI creates an API over the given registry.
func NewAPI(sets SetRegistry, settings SettingsUpdater, journal JournalReader) *API {
	if sets == nil {
		panic("status: NewAPI called with nil registry")
	}
	return &API{sets: sets, settings: settings, journal: journal}
}

// SetsResponse is the body of GET /sets.
type SetsResponse struct {
	Active string   `json:"active"`
	Names  []string `json:"names"`
}

// Register adds the API routes to mux. Pass it to Hub.Handler.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sets", a.listSets)
	mux.HandleFunc("GET /sets/{name}", a.getSet)
	mux.HandleFunc("PUT /sets/{name}", a.putSet)
	mux.HandleFunc("DELETE /sets/{name}", a.deleteSet)
	mux.HandleFunc("POST /active", a.setActive)
	mux.HandleFunc("PATCH /settings", a.patchSettings)
	mux.HandleFunc("GET /journal", a.recent)
}

func (a *API) listSets(w http.ResponseWriter, r *http.Request) {
	active, _ := a.sets.Active()
	writeJSON(w, http.StatusOK, SetsResponse{Active: active, Names: a.sets.Names()})
}

func (a *API) getSet(w http.ResponseWriter, r *http.Request) {
	set, ok := a.sets.Get(r.PathValue("name"))
	if !ok {
		http.Error(w, "action set not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (a *API) putSet(w http.ResponseWriter, r *http.Request) {
	var set action.Set
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		http.Error(w, "invalid action set: "+err.Error(), http.StatusBadRequest)
		return
	}
	name := r.PathValue("name")
	if err := a.sets.Upsert(name, set); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("[STATUS] action set saved", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteSet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := a.sets.Delete(name); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("[STATUS] action set deleted", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, `expected {"name": "<set>"}`, http.StatusBadRequest)
		return
	}
	if err := a.sets.SetActive(body.Name); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("[STATUS] active set changed", "name", body.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) patchSettings(w http.ResponseWriter, r *http.Request) {
	if a.settings == nil {
		http.NotFound(w, r)
		return
	}
	var patch SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid settings: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.settings.PatchSettings(patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) recent(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		http.NotFound(w, r)
		return
	}
	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := a.journal.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("[STATUS] journal read failed", "error", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps registry errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, action.ErrSetNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, action.ErrIncompleteSet), errors.Is(err, action.ErrSetActive):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("[STATUS] request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
