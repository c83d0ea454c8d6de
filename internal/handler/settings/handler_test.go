package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
)

type stubModels struct {
	models []string
	err    error
}

func (s stubModels) ListModels(context.Context) ([]string, error) {
	return s.models, s.err
}

func setupRouter(seed map[string]string) (*chi.Mux, *settings.MemoryStore) {
	store := settings.NewMemoryStore(seed)
	r := chi.NewRouter()
	New(store, nil, zerolog.Nop()).RegisterRoutes(r)
	return r, store
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]*string {
	t.Helper()
	var out map[string]*string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestGetSettingsMasksSecrets(t *testing.T) {
	r, _ := setupRouter(map[string]string{settings.KeyFigmaToken: "figd_secret", settings.KeyAPIModel: "doubao-pro"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/settings", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	out := decode(t, resp)
	if out[settings.KeyFigmaToken] == nil || *out[settings.KeyFigmaToken] != settings.Obfuscated {
		t.Fatalf("figma token not masked: %v", out[settings.KeyFigmaToken])
	}
	if v, ok := out[settings.KeyGitHubToken]; !ok || v != nil {
		t.Fatalf("expected github_token to be null")
	}
	if out[settings.KeyAPIModel] == nil || *out[settings.KeyAPIModel] != "doubao-pro" {
		t.Fatalf("api_model not returned")
	}
}

func TestPutSettingsIgnoresUnknownAndMaskedValues(t *testing.T) {
	r, store := setupRouter(map[string]string{settings.KeyFigmaToken: "figd_secret"})

	body, _ := json.Marshal(map[string]string{
		settings.KeyFigmaToken:  settings.Obfuscated,
		settings.KeyGitHubToken: " ghp_token ",
		"theme":                 "dark",
	})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	ctx := context.Background()
	if v, _, _ := store.Get(ctx, settings.KeyFigmaToken); v != "figd_secret" {
		t.Fatalf("masked value overwrote the secret: %q", v)
	}
	if v, _, _ := store.Get(ctx, settings.KeyGitHubToken); v != "ghp_token" {
		t.Fatalf("github token not saved: %q", v)
	}

	caps, err := settings.LoadCapabilities(ctx, store)
	if err != nil {
		t.Fatalf("LoadCapabilities err: %v", err)
	}
	if !caps.Figma || !caps.CodeHost {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
}

func TestPutSettingsInvalidBody(t *testing.T) {
	r, _ := setupRouter(nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader([]byte(`[1,2]`))))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetSettingsMasksAPIKey(t *testing.T) {
	r, _ := setupRouter(map[string]string{settings.KeyAPIEndpoint: "https://llm.example.com/v1", settings.KeyAPIKey: "sk-secret"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/settings", nil))
	out := decode(t, resp)
	if out[settings.KeyAPIKey] == nil || *out[settings.KeyAPIKey] != settings.Obfuscated {
		t.Fatalf("api key not masked: %v", out[settings.KeyAPIKey])
	}
	if out[settings.KeyAPIEndpoint] == nil || *out[settings.KeyAPIEndpoint] != "https://llm.example.com/v1" {
		t.Fatalf("api endpoint not returned")
	}
}

func TestListModels(t *testing.T) {
	cases := []struct {
		name   string
		models ModelLister
		status int
	}{
		{"ok", stubModels{models: []string{"doubao-pro", "doubao-vision"}}, http.StatusOK},
		{"not configured", stubModels{err: ai.ErrProviderNotConfigured}, http.StatusBadRequest},
		{"provider error", stubModels{err: errors.New("401 Unauthorized")}, http.StatusBadGateway},
		{"no lister", nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			New(settings.NewMemoryStore(nil), tc.models, zerolog.Nop()).RegisterRoutes(r)

			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/settings/models", nil))
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			if tc.status != http.StatusOK {
				return
			}

			var out struct {
				Models []string `json:"models"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(out.Models) != 2 || out.Models[0] != "doubao-pro" {
				t.Fatalf("unexpected models: %v", out.Models)
			}
		})
	}
}
