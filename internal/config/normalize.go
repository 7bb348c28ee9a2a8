package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHomebox()
	c.normalizeVision()
	if err := c.normalizeSession(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PreviewDir) == "" {
		c.Paths.PreviewDir = filepath.Join(c.Paths.DataDir, defaultPreviewDirName)
	}
	if c.Paths.PreviewDir, err = expandPath(c.Paths.PreviewDir); err != nil {
		return fmt.Errorf("paths.preview_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHomebox() {
	lookupInto(&c.Homebox.URL, "HOMEBOX_URL")
	lookupInto(&c.Homebox.Username, "HOMEBOX_USERNAME")
	lookupInto(&c.Homebox.Password, "HOMEBOX_PASSWORD")
	c.Homebox.URL = strings.TrimRight(strings.TrimSpace(c.Homebox.URL), "/")
	if c.Homebox.URL == "" {
		c.Homebox.URL = defaultHomeboxURL
	}
	c.Homebox.Username = strings.TrimSpace(c.Homebox.Username)
	if c.Homebox.URL == defaultHomeboxURL && c.Homebox.Username == "" {
		c.Homebox.Username = defaultHomeboxDemoUsername
		c.Homebox.Password = defaultHomeboxDemoPassword
	}
}

func (c *Config) normalizeVision() {
	c.Vision.Provider = strings.ToLower(strings.TrimSpace(c.Vision.Provider))
	if c.Vision.Provider == "" {
		c.Vision.Provider = ProviderOpenAI
	}
	lookupInto(&c.Vision.APIKey, "VISION_API_KEY")
	lookupInto(&c.Vision.APIKey, "OPENAI_API_KEY")
	lookupInto(&c.Gemini.APIKey, "GEMINI_API_KEY")
	c.Vision.BaseURL = strings.TrimSpace(c.Vision.BaseURL)
	if c.Vision.BaseURL == "" {
		c.Vision.BaseURL = defaultVisionBaseURL
	}
	if strings.TrimSpace(c.Vision.Model) == "" {
		c.Vision.Model = defaultVisionModel
	}
	if strings.TrimSpace(c.Gemini.Model) == "" {
		c.Gemini.Model = defaultGeminiModel
	}
}

func (c *Config) normalizeSession() error {
	var err error
	if strings.TrimSpace(c.Session.Path) == "" {
		c.Session.Path = filepath.Join(c.Paths.DataDir, defaultSessionFileName)
	}
	if c.Session.Path, err = expandPath(c.Session.Path); err != nil {
		return fmt.Errorf("session.path: %w", err)
	}
	c.Session.BlobBackend = strings.ToLower(strings.TrimSpace(c.Session.BlobBackend))
	if c.Session.BlobBackend == "" {
		c.Session.BlobBackend = BlobBackendSQLite
	}
	lookupInto(&c.Session.S3.AccessKey, "S3_ACCESS_KEY")
	lookupInto(&c.Session.S3.SecretKey, "S3_SECRET_KEY")
	c.Session.S3.Endpoint = strings.TrimSpace(c.Session.S3.Endpoint)
	c.Session.S3.Bucket = strings.TrimSpace(c.Session.S3.Bucket)
	return nil
}

func (c *Config) normalizeNotifications() {
	lookupInto(&c.Notifications.NtfyTopic, "NTFY_TOPIC")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// lookupInto fills an empty target from the named environment variable.
func lookupInto(target *string, key string) {
	if strings.TrimSpace(*target) != "" {
		return
	}
	if value, ok := os.LookupEnv(key); ok {
		*target = strings.TrimSpace(value)
	}
}
