package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fschwaiger/cubetracker/internal/action"
	"github.com/fschwaiger/cubetracker/internal/journal"
	"github.com/fschwaiger/cubetracker/internal/side"
)

type mockSettings struct {
	patches []SettingsPatch
	err     error
}

func (m *mockSettings) PatchSettings(p SettingsPatch) error {
	if m.err != nil {
		return m.err
	}
	m.patches = append(m.patches, p)
	return nil
}

type mockJournal struct {
	entries []journal.Entry
	limit   int
	err     error
}

func (m *mockJournal) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	m.limit = limit
	return m.entries, m.err
}

func newTestAPI(t *testing.T) (http.Handler, *action.Registry, *mockSettings, *mockJournal) {
	t.Helper()
	reg, err := action.NewRegistry(map[string]action.Set{
		"default": {side.TopFront: {Template: "tf"}},
		"work":    {side.BottomFront: {Command: "work:start"}},
	}, "default", nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	settings := &mockSettings{}
	jr := &mockJournal{}
	api := NewAPI(reg, settings, jr)
	return newTestHub().Handler(api.Register), reg, settings, jr
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIListAndGetSets(t *testing.T) {
	h, _, _, _ := newTestAPI(t)

	rec := serve(h, http.MethodGet, "/sets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /sets = %d, want 200", rec.Code)
	}
	var list SetsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Active != "default" || len(list.Names) != 2 || list.Names[0] != "default" || list.Names[1] != "work" {
		t.Errorf("GET /sets = %+v", list)
	}

	rec = serve(h, http.MethodGet, "/sets/work", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /sets/work = %d, want 200", rec.Code)
	}
	var set action.Set
	if err := json.NewDecoder(rec.Body).Decode(&set); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if set[side.BottomFront].Command != "work:start" {
		t.Errorf("work BF = %+v", set[side.BottomFront])
	}
	if len(set) != len(side.All()) {
		t.Errorf("set has %d sides, want %d", len(set), len(side.All()))
	}

	if rec := serve(h, http.MethodGet, "/sets/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /sets/nope = %d, want 404", rec.Code)
	}
}

func TestAPIPutAndDeleteSet(t *testing.T) {
	h, reg, _, _ := newTestAPI(t)

	rec := serve(h, http.MethodPut, "/sets/focus", `{"TL": {"template": "{{time}} focus", "action_set": "default"}}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT /sets/focus = %d: %s", rec.Code, rec.Body.String())
	}
	set, ok := reg.Get("focus")
	if !ok {
		t.Fatal("focus was not added")
	}
	if a := set[side.TopLeft]; a.Template != "{{time}} focus" || a.ActionSet != "default" {
		t.Errorf("focus TL = %+v", a)
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unknown side", http.MethodPut, "/sets/bad", `{"XX": {"template": "x"}}`, http.StatusBadRequest},
		{"malformed body", http.MethodPut, "/sets/bad", `{`, http.StatusBadRequest},
		{"delete active", http.MethodDelete, "/sets/default", "", http.StatusBadRequest},
		{"delete missing", http.MethodDelete, "/sets/nope", "", http.StatusNotFound},
		{"delete", http.MethodDelete, "/sets/focus", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(h, tt.method, tt.target, tt.body); rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
			}
		})
	}
	if _, ok := reg.Get("focus"); ok {
		t.Error("focus should be deleted")
	}
	if _, ok := reg.Get("bad"); ok {
		t.Error("a rejected set should not be installed")
	}
}

func TestAPISetActive(t *testing.T) {
	h, reg, _, _ := newTestAPI(t)

	if rec := serve(h, http.MethodPost, "/active", `{"name": "work"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("POST /active = %d: %s", rec.Code, rec.Body.String())
	}
	if name, _ := reg.Active(); name != "work" {
		t.Errorf("active = %q, want work", name)
	}
	if rec := serve(h, http.MethodPost, "/active", `{"name": "nope"}`); rec.Code != http.StatusNotFound {
		t.Errorf("POST /active unknown = %d, want 404", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/active", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("POST /active without name = %d, want 400", rec.Code)
	}
	if name, _ := reg.Active(); name != "work" {
		t.Errorf("active = %q after rejected switches, want work", name)
	}
}

func TestAPIPatchSettings(t *testing.T) {
	h, _, settings, _ := newTestAPI(t)

	rec := serve(h, http.MethodPatch, "/settings", `{"template_target_file": "~/log/{{date}}.md"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PATCH /settings = %d: %s", rec.Code, rec.Body.String())
	}
	if len(settings.patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(settings.patches))
	}
	p := settings.patches[0]
	if p.TemplateTargetFile == nil || *p.TemplateTargetFile != "~/log/{{date}}.md" {
		t.Errorf("TemplateTargetFile = %v", p.TemplateTargetFile)
	}
	if p.LogLevel != nil {
		t.Errorf("LogLevel = %q, want unset", *p.LogLevel)
	}

	settings.err = errors.New("log_level must be one of debug, info, warn, error")
	if rec := serve(h, http.MethodPatch, "/settings", `{"log_level": "loud"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("rejected PATCH /settings = %d, want 400", rec.Code)
	}
}

func TestAPIJournal(t *testing.T) {
	h, _, _, jr := newTestAPI(t)
	at := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	jr.entries = []journal.Entry{{At: at, Side: side.TopFront, ActionSet: "default"}}

	rec := serve(h, http.MethodGet, "/journal?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /journal = %d", rec.Code)
	}
	if jr.limit != 5 {
		t.Errorf("limit = %d, want 5", jr.limit)
	}
	var entries []journal.Entry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Side != side.TopFront || !entries[0].At.Equal(at) {
		t.Errorf("entries = %+v", entries)
	}

	serve(h, http.MethodGet, "/journal", "")
	if jr.limit != defaultJournalLimit {
		t.Errorf("default limit = %d, want %d", jr.limit, defaultJournalLimit)
	}
	if rec := serve(h, http.MethodGet, "/journal?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rec.Code)
	}
	jr.err = errors.New("disk gone")
	if rec := serve(h, http.MethodGet, "/journal", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing journal = %d, want 500", rec.Code)
	}
}

func TestAPIOptionalRoutes(t *testing.T) {
	reg, err := action.NewRegistry(map[string]action.Set{"default": {}}, "default", nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	h := newTestHub().Handler(NewAPI(reg, nil, nil).Register)

	if rec := serve(h, http.MethodPatch, "/settings", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("PATCH /settings without updater = %d, want 404", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/journal", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /journal without journal = %d, want 404", rec.Code)
	}
}
