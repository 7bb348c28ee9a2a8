package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndUsesEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VISION_API_KEY", "vision-key")
	t.Setenv("HOMEBOX_URL", "https://homebox.example.com/api/v1/")
	t.Setenv("HOMEBOX_USERNAME", "me@example.com")
	t.Setenv("HOMEBOX_PASSWORD", "secret")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "homebox-scan")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.PreviewDir != filepath.Join(wantData, "previews") {
		t.Fatalf("unexpected preview dir: %q", cfg.Paths.PreviewDir)
	}
	if cfg.Session.Path != filepath.Join(wantData, "session.db") {
		t.Fatalf("unexpected session path: %q", cfg.Session.Path)
	}
	if cfg.Homebox.URL != "https://homebox.example.com/api/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Homebox.URL)
	}
	if cfg.Homebox.Username != "me@example.com" || cfg.Homebox.Password != "secret" {
		t.Fatalf("expected credentials from env, got %q/%q", cfg.Homebox.Username, cfg.Homebox.Password)
	}
	if cfg.Vision.APIKey != "vision-key" {
		t.Fatalf("expected vision key from env, got %q", cfg.Vision.APIKey)
	}
	if err := cfg.RequireVision(); err != nil {
		t.Fatalf("RequireVision returned error: %v", err)
	}
	if cfg.Submission.AttachmentRetryLimit != 3 {
		t.Fatalf("unexpected attachment retry limit %d", cfg.Submission.AttachmentRetryLimit)
	}
}

func TestLoadDemoServerUsesDemoCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HOMEBOX_URL", "")
	t.Setenv("HOMEBOX_USERNAME", "")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Homebox.Username == "" || cfg.Homebox.Password == "" {
		t.Fatal("expected demo credentials for the demo server")
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/scan-data",
		},
		"homebox": map[string]any{
			"url":             "http://homebox.local:7745/api/v1",
			"username":        "user",
			"password":        "pass",
			"timeout_seconds": 5,
			"retry_attempts":  2,
		},
		"vision": map[string]any{
			"provider": "gemini",
		},
		"gemini": map[string]any{
			"api_key": "gem-key",
			"model":   "gemini-pro-vision",
		},
		"submission": map[string]any{
			"concurrency":            4,
			"attachment_retry_limit": 0,
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "scan-data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Submission.Concurrency != 4 || cfg.Submission.AttachmentRetryLimit != 0 {
		t.Fatalf("unexpected submission section %+v", cfg.Submission)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
	vision := cfg.VisionSettings()
	if vision.Provider != config.ProviderGemini || vision.APIKey != "gem-key" || vision.Model != "gemini-pro-vision" {
		t.Fatalf("unexpected vision settings %+v", vision)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"homebox url", func(c *config.Config) { c.Homebox.URL = "ftp://nope" }, "homebox.url"},
		{"provider", func(c *config.Config) { c.Vision.Provider = "llama" }, "vision.provider"},
		{"submission concurrency", func(c *config.Config) { c.Submission.Concurrency = 0 }, "submission.concurrency"},
		{"retry limit", func(c *config.Config) { c.Submission.AttachmentRetryLimit = -1 }, "attachment_retry_limit"},
		{"blob backend", func(c *config.Config) { c.Session.BlobBackend = "disk" }, "session.blob_backend"},
		{"s3 bucket", func(c *config.Config) {
			c.Session.BlobBackend = config.BlobBackendS3
			c.Session.S3.Endpoint = "localhost:9000"
		}, "session.s3.bucket"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "topic" }, "ntfy_topic"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}

func TestSampleConfigTakesHomeboxURLFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HOMEBOX_URL", "http://nas.local:7745/api/v1")
	t.Setenv("HOMEBOX_USERNAME", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Homebox.URL != "http://nas.local:7745/api/v1" {
		t.Fatalf("expected url from env, got %q", cfg.Homebox.URL)
	}
	if cfg.Homebox.Username != "" {
		t.Fatalf("demo credentials leaked onto a custom server: %q", cfg.Homebox.Username)
	}
}

func TestRequireVisionWithoutKey(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireVision(); err == nil || !strings.Contains(err.Error(), "vision.api_key") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
