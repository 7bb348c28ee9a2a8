package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directories used by the scanner.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	PreviewDir string `toml:"preview_dir"`
}

// Homebox contains connection settings for the inventory server.
type Homebox struct {
	URL            string `toml:"url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	StayLoggedIn   bool   `toml:"stay_logged_in"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Vision contains settings for the item detection model.
type Vision struct {
	// Provider selects the backend: "openai" for any OpenAI-compatible chat
	// completions endpoint, or "gemini".
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Gemini contains Google Gemini credentials used when vision.provider is "gemini".
type Gemini struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// Detection tunes how captured photos are analyzed.
type Detection struct {
	Concurrency    int  `toml:"concurrency"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
	ExtendedFields bool `toml:"extended_fields"`
	SuggestLabels  bool `toml:"suggest_labels"`
	DuplicateCheck bool `toml:"duplicate_check"`
}

// Submission tunes batch submission.
type Submission struct {
	Concurrency int `toml:"concurrency"`
	// AttachmentRetryLimit caps how many times attachment uploads are retried
	// for an item that was created but is missing photos. Zero means unlimited.
	AttachmentRetryLimit int  `toml:"attachment_retry_limit"`
	UploadPhotos         bool `toml:"upload_photos"`
}

// S3 contains settings for the optional off-device image backend.
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Session contains settings for crash-recovery persistence.
type Session struct {
	Path             string `toml:"path"`
	MaxSnapshotBytes int64  `toml:"max_snapshot_bytes"`
	// BlobBackend is "sqlite" (images stored next to the snapshot) or "s3".
	BlobBackend string `toml:"blob_backend"`
	S3          S3     `toml:"s3"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Submission     bool   `toml:"submission"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for homebox-scan.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and preview directories
//   - Homebox: inventory server URL and credentials
//   - Vision / Gemini: detection model connection settings
//   - Detection: analysis concurrency and prompt features
//   - Submission: batch concurrency and attachment retry policy
//   - Session: snapshot database, quota, and image backend
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Homebox       Homebox       `toml:"homebox"`
	Vision        Vision        `toml:"vision"`
	Gemini        Gemini        `toml:"gemini"`
	Detection     Detection     `toml:"detection"`
	Submission    Submission    `toml:"submission"`
	Session       Session       `toml:"session"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, log, and preview directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.PreviewDir, filepath.Dir(c.Session.Path)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the file used to keep a single wizard session per profile.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "session.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// VisionConfig is the resolved connection for the detection model.
type VisionConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// VisionSettings resolves the detection backend, drawing Gemini credentials
// from the [gemini] section when that provider is selected.
func (c *Config) VisionSettings() VisionConfig {
	cfg := VisionConfig{
		Provider:       strings.ToLower(strings.TrimSpace(c.Vision.Provider)),
		APIKey:         strings.TrimSpace(c.Vision.APIKey),
		BaseURL:        strings.TrimSpace(c.Vision.BaseURL),
		Model:          strings.TrimSpace(c.Vision.Model),
		Referer:        strings.TrimSpace(c.Vision.Referer),
		Title:          strings.TrimSpace(c.Vision.Title),
		TimeoutSeconds: c.Vision.TimeoutSeconds,
	}
	if cfg.Provider == ProviderGemini {
		cfg.APIKey = strings.TrimSpace(c.Gemini.APIKey)
		cfg.Model = strings.TrimSpace(c.Gemini.Model)
		cfg.BaseURL = ""
	}
	return cfg
}
