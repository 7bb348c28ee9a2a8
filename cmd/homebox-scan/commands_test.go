package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
)

func TestConfigInitWritesSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	stdout, _, err := runCLI(t, nil, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config on disk: %v", err)
	}

	_, _, err = runCLI(t, nil, "", "config", "init", "--path", target)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite protection, got %v", err)
	}
	if _, _, err := runCLI(t, nil, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "", "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Config path: "+env.configPath)
	requireContains(t, stdout, "Configuration valid")
	if strings.Contains(stdout, "Warning:") {
		t.Fatalf("did not expect a vision warning:\n%s", stdout)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Submission.Concurrency = 0
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, env, "", "config", "validate")
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "submission.concurrency")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var shown config.Config
	if err := toml.Unmarshal([]byte(stdout), &shown); err != nil {
		t.Fatalf("decode shown config: %v\n%s", err, stdout)
	}
	if shown.Homebox.Password != maskedSecret || shown.Vision.APIKey != maskedSecret {
		t.Fatalf("expected secrets masked, got %q / %q", shown.Homebox.Password, shown.Vision.APIKey)
	}
	if shown.Homebox.Username != env.cfg.Homebox.Username {
		t.Fatalf("expected username kept, got %q", shown.Homebox.Username)
	}
	if shown.Gemini.APIKey != "" {
		t.Fatalf("expected empty secrets to stay empty, got %q", shown.Gemini.APIKey)
	}
}

func TestMaskSecretsLeavesOriginalUntouched(t *testing.T) {
	cfg := config.Default()
	cfg.Homebox.Password = "hunter2"
	cfg.Session.S3.SecretKey = "s3-secret"

	masked := maskSecrets(cfg)
	if masked.Homebox.Password != maskedSecret || masked.Session.S3.SecretKey != maskedSecret {
		t.Fatalf("expected masked copy, got %+v", masked.Homebox)
	}
	if cfg.Homebox.Password != "hunter2" {
		t.Fatal("maskSecrets modified its argument")
	}
}

func TestSessionStatusWithoutSession(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "", "session", "status")
	if err != nil {
		t.Fatalf("session status: %v", err)
	}
	requireContains(t, stdout, "No saved session")

	stdout, _, err = runCLI(t, env, "", "session", "status", "--output", "yaml")
	if err != nil {
		t.Fatalf("session status yaml: %v", err)
	}
	var view map[string]any
	if err := yaml.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, stdout)
	}
	if view["saved"] != false {
		t.Fatalf("expected saved=false, got %v", view["saved"])
	}
}

func TestLoginReportsServer(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "", "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	requireContains(t, stdout, "Logged in to "+env.cfg.Homebox.URL)
	requireContains(t, stdout, "Token expires")
}

func TestLocationsOutput(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "", "locations")
	if err != nil {
		t.Fatalf("locations: %v", err)
	}
	requireContains(t, stdout, "Garage / Shelf")
	requireContains(t, stdout, "loc-2")

	stdout, _, err = runCLI(t, env, "", "locations", "-o", "json", "--filter", "shelf")
	if err != nil {
		t.Fatalf("locations json: %v", err)
	}
	var views []locationView
	if err := json.Unmarshal([]byte(stdout), &views); err != nil {
		t.Fatalf("decode locations: %v\n%s", err, stdout)
	}
	if len(views) != 1 || views[0].ID != "loc-2" || views[0].Path != "Garage / Shelf" {
		t.Fatalf("unexpected locations: %+v", views)
	}

	stdout, _, err = runCLI(t, env, "", "locations", "--filter", "attic")
	if err != nil {
		t.Fatalf("locations filter: %v", err)
	}
	requireContains(t, stdout, "No locations found")
}

func TestLabelsOutput(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "", "labels")
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	requireContains(t, stdout, "Tools")
	requireContains(t, stdout, "lab-1")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "", "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, stdout, "Notifications are not configured")
}

func TestInvalidOutputFormat(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "", "session", "status", "-o", "xml")
	if err == nil {
		t.Fatal("expected error for unknown output format")
	}
}
