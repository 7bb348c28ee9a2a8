package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.PreviewDir = filepath.Join(base, "previews")
	cfgVal.Session.Path = filepath.Join(base, "data", "session.db")
	cfgVal.Homebox.URL = "http://127.0.0.1:0/api/v1"
	cfgVal.Homebox.Username = "tester@example.com"
	cfgVal.Homebox.Password = "secret"
	cfgVal.Vision.APIKey = "test"
	cfgVal.Submission.Concurrency = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithHomeboxURL points the test config at a fake inventory server.
func WithHomeboxURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Homebox.URL = url
	}
}

// WithSnapshotQuota overrides the session snapshot quota.
func WithSnapshotQuota(bytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Session.MaxSnapshotBytes = bytes
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
