package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
	"github.com/Duelion/homebox-companion-sub001/internal/testsupport"
)

// fakeHomebox serves the subset of the Homebox API the CLI uses.
type fakeHomebox struct {
	mu          sync.Mutex
	created     []map[string]any
	attachments map[string]int
	logins      int
}

func (f *fakeHomebox) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/users/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		writeTestJSON(t, w, map[string]any{
			"token":     "tok-1",
			"expiresAt": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /api/v1/locations/tree", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, []map[string]any{{
			"id": "loc-1", "name": "Garage", "type": "location",
			"children": []map[string]any{{"id": "loc-2", "name": "Shelf", "type": "location"}},
		}})
	})
	mux.HandleFunc("GET /api/v1/labels", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, []map[string]any{{"id": "lab-1", "name": "Tools"}})
	})
	mux.HandleFunc("GET /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, map[string]any{"items": []any{}, "total": 0})
	})
	mux.HandleFunc("GET /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, map[string]any{"id": r.PathValue("id"), "name": "Toolbox", "quantity": 1})
	})
	mux.HandleFunc("PUT /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, map[string]any{"id": r.PathValue("id")})
	})
	mux.HandleFunc("POST /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.created = append(f.created, payload)
		id := fmt.Sprintf("item-%d", len(f.created))
		f.mu.Unlock()
		writeTestJSON(t, w, map[string]any{"id": id, "name": payload["name"]})
	})
	mux.HandleFunc("POST /api/v1/items/{id}/attachments", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.attachments[r.PathValue("id")]++
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func (f *fakeHomebox) createdNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.created))
	for _, item := range f.created {
		names = append(names, fmt.Sprint(item["name"]))
	}
	return names
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// visionServer answers every chat completion with the same detection.
func visionServer(t *testing.T, names ...string) *httptest.Server {
	t.Helper()
	items := make([]map[string]any, 0, len(names))
	for _, name := range names {
		items = append(items, map[string]any{"name": name, "quantity": 1})
	}
	content, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		t.Fatalf("marshal detection: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": string(content)}}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	homebox    *fakeHomebox
}

func setupCLITestEnv(t *testing.T, detected ...string) *cliTestEnv {
	t.Helper()

	hb := &fakeHomebox{attachments: map[string]int{}}
	hbServer := httptest.NewServer(hb.handler(t))
	t.Cleanup(hbServer.Close)
	vision := visionServer(t, detected...)

	cfg := testsupport.NewConfig(t, testsupport.WithHomeboxURL(hbServer.URL+"/api/v1"))
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg.Vision.BaseURL = vision.URL
	cfg.Homebox.RetryAttempts = 1
	cfg.Detection.Concurrency = 1

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base, homebox: hb}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// writePhoto creates a small JPEG-looking file.
func (env *cliTestEnv) writePhoto(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, name)
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("photo:"+name)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	return path
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if env != nil {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}
