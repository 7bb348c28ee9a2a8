package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateHomebox(); err != nil {
		return err
	}
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateSubmission(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireVision reports whether detection credentials are present. It is
// checked by commands that analyze photos rather than at load time.
func (c *Config) RequireVision() error {
	settings := c.VisionSettings()
	if settings.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		if settings.Provider == ProviderGemini {
			return fmt.Errorf("gemini.api_key is required. Set GEMINI_API_KEY or edit %s", defaultPath)
		}
		return fmt.Errorf("vision.api_key is required. Set VISION_API_KEY or edit %s (create with 'homebox-scan config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateHomebox() error {
	if c.Homebox.URL == "" {
		return errors.New("homebox.url must be set")
	}
	parsed, err := url.Parse(c.Homebox.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("homebox.url must be an http(s) URL, got %q", c.Homebox.URL)
	}
	if c.Homebox.TimeoutSeconds <= 0 {
		return errors.New("homebox.timeout_seconds must be positive")
	}
	if c.Homebox.RetryAttempts < 1 {
		return errors.New("homebox.retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateVision() error {
	switch c.Vision.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("vision.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Vision.Provider)
	}
	if c.Vision.TimeoutSeconds <= 0 {
		return errors.New("vision.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.Concurrency < 1 {
		return errors.New("detection.concurrency must be at least 1")
	}
	if c.Detection.TimeoutSeconds <= 0 {
		return errors.New("detection.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSubmission() error {
	if c.Submission.Concurrency < 1 {
		return errors.New("submission.concurrency must be at least 1")
	}
	if c.Submission.AttachmentRetryLimit < 0 {
		return errors.New("submission.attachment_retry_limit must be zero (unlimited) or positive")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.MaxSnapshotBytes <= 0 {
		return errors.New("session.max_snapshot_bytes must be positive")
	}
	switch c.Session.BlobBackend {
	case BlobBackendSQLite:
	case BlobBackendS3:
		if c.Session.S3.Endpoint == "" {
			return errors.New("session.s3.endpoint must be set when session.blob_backend is \"s3\"")
		}
		if c.Session.S3.Bucket == "" {
			return errors.New("session.s3.bucket must be set when session.blob_backend is \"s3\"")
		}
	default:
		return fmt.Errorf("session.blob_backend must be %q or %q, got %q", BlobBackendSQLite, BlobBackendS3, c.Session.BlobBackend)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return errors.New("notifications.ntfy_topic must be a full http(s) URL")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
