// Package previews hands out displayable handles for in-memory images and
// guarantees each handle is released exactly once.
//
// A handle is a temp file under the preview directory exposed as a file://
// URL. The Manager is the only owner of those files; callers never delete
// them directly.
package previews

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Duelion/homebox-companion-sub001/internal/fileutil"
	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

const filePrefix = "preview-"

// ErrClosed is returned by URL after Cleanup.
var ErrClosed = errors.New("preview manager closed")

// Manager tracks preview handles by file ID.
type Manager struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]string
	closed  bool
}

// NewManager creates the preview directory if needed.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("preview directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview directory: %w", err)
	}
	return &Manager{
		dir:     dir,
		logger:  logging.NewComponentLogger(logger, "previews"),
		handles: make(map[string]string),
	}, nil
}

// URL returns the handle for file, creating it on first use. Repeated calls
// for the same file ID return the same URL.
func (m *Manager) URL(file scan.File) (string, error) {
	if file.ID == "" {
		return "", errors.New("preview requires a file id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	if path, ok := m.handles[file.ID]; ok {
		return toURL(path), nil
	}
	path := filepath.Join(m.dir, filePrefix+file.ID+extensionFor(file.MimeType))
	if err := fileutil.WriteFileAtomic(path, file.Data, 0o600); err != nil {
		return "", fmt.Errorf("write preview %s: %w", file.ID, err)
	}
	m.handles[file.ID] = path
	return toURL(path), nil
}

// Sync releases handles for files not in files and creates handles for new ones.
func (m *Manager) Sync(files []scan.File) error {
	wanted := make(map[string]struct{}, len(files))
	for _, file := range files {
		wanted[file.ID] = struct{}{}
	}

	m.mu.Lock()
	var stale []string
	for id := range m.handles {
		if _, ok := wanted[id]; !ok {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.Release(id)
	}

	var errs []error
	for _, file := range files {
		if _, err := m.URL(file); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Release revokes the handle for id. Releasing an unknown id is a no-op.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	path, ok := m.handles[id]
	// Drop the registry entry first so a concurrent release cannot delete twice.
	delete(m.handles, id)
	m.mu.Unlock()
	if ok {
		m.remove(path)
	}
}

// Len reports the number of live handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Cleanup releases every handle. Later URL calls fail with ErrClosed.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.handles))
	for _, path := range m.handles {
		paths = append(paths, path)
	}
	m.handles = make(map[string]string)
	m.closed = true
	m.mu.Unlock()

	for _, path := range paths {
		m.remove(path)
	}
}

func (m *Manager) remove(path string) {
	if err := fileutil.RemoveIfExists(path); err != nil {
		logging.WarnWithContext(m.logger, "failed to remove preview", "preview_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check preview_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
	}
}

func toURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}
