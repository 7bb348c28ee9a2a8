package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/notifications"
	"github.com/Duelion/homebox-companion-sub001/internal/previews"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services/gemini"
	"github.com/Duelion/homebox-companion-sub001/internal/services/homebox"
	"github.com/Duelion/homebox-companion-sub001/internal/services/llm"
	"github.com/Duelion/homebox-companion-sub001/internal/session"
	"github.com/Duelion/homebox-companion-sub001/internal/vision"
	"github.com/Duelion/homebox-companion-sub001/internal/workflow"
)

const stalePreviewAge = 24 * time.Hour

// scanRuntime owns everything a wizard run needs. Close releases it in
// reverse order of acquisition.
type scanRuntime struct {
	cfg       *config.Config
	logger    *slog.Logger
	lock      *session.Lock
	storage   *session.Components
	inventory *inventory
	previews  *previews.Manager
	labels    []scan.Label
	closers   []func() error
	machine   *workflow.Machine
}

func openRuntime(ctx context.Context, c *commandContext) (*scanRuntime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireVision(); err != nil {
		return nil, err
	}
	logger := c.loggerValue()

	rt := &scanRuntime{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	lock, err := session.AcquireLock(cfg.LockPath())
	if err != nil {
		if errors.Is(err, session.ErrLocked) {
			return nil, fmt.Errorf("another homebox-scan wizard is running (lock %s)", cfg.LockPath())
		}
		return nil, err
	}
	rt.lock = lock

	storage, err := session.OpenFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}
	rt.storage = storage
	rt.inventory = newInventory(cfg, storage.Store, logger)

	if result := previews.CleanStale(cfg.Paths.PreviewDir, stalePreviewAge, logger); len(result.Removed) > 0 {
		logger.Info("removed stale previews", logging.Int("count", len(result.Removed)))
	}
	manager, err := previews.NewManager(cfg.Paths.PreviewDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open preview directory: %w", err)
	}
	rt.previews = manager

	completer, err := rt.newCompleter(ctx)
	if err != nil {
		return nil, err
	}
	labels := rt.fetchLabels(ctx)
	rt.labels = labels

	timeout := time.Duration(cfg.Detection.TimeoutSeconds) * time.Second
	deps := workflow.Deps{
		Detector:  vision.NewDetector(completer, vision.WithLogger(logger), vision.WithTimeout(timeout)),
		Corrector: vision.NewCorrector(completer, labels, vision.WithLogger(logger), vision.WithTimeout(timeout)),
		Analyzer:  vision.NewAnalyzer(completer, labels, vision.WithLogger(logger), vision.WithTimeout(timeout)),
		Inventory: homebox.NewInventory(rt.inventory.client),
		Tokens:    rt.inventory.tokens,
		Persister: storage.Persister,
		Previews:  manager,
		Notifier:  notifications.NewService(cfg),
		Labels:    labels,
		Logger:    logger,
	}
	if cfg.Detection.DuplicateCheck {
		deps.Duplicates = homebox.NewDuplicateChecker(rt.inventory.client, rt.inventory.tokens, logger)
	}
	rt.machine = workflow.New(workflow.ConfigFrom(cfg), deps)
	ok = true
	return rt, nil
}

func (rt *scanRuntime) newCompleter(ctx context.Context) (vision.Completer, error) {
	settings := rt.cfg.VisionSettings()
	if settings.Provider == config.ProviderGemini {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:         settings.APIKey,
			Model:          settings.Model,
			TimeoutSeconds: settings.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		return client, nil
	}
	return llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	}), nil
}

// fetchLabels loads Homebox labels for detection prompts. Failures only
// cost label suggestions.
func (rt *scanRuntime) fetchLabels(ctx context.Context) []scan.Label {
	if !rt.cfg.Detection.SuggestLabels {
		return nil
	}
	token, err := rt.inventory.tokens.Token(ctx)
	if err == nil {
		var labels []homebox.Label
		if labels, err = rt.inventory.client.Labels(ctx, token); err == nil {
			return homebox.ToLabels(labels)
		}
	}
	logging.WarnWithContext(rt.logger, "label fetch failed", "labels_unavailable",
		logging.Error(err),
		logging.String(logging.FieldImpact, "detections will not suggest labels"),
	)
	return nil
}

func (rt *scanRuntime) Close() {
	if rt == nil {
		return
	}
	if rt.machine != nil {
		rt.machine.Dispose()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Debug("close failed", logging.Error(err))
		}
	}
	if rt.storage != nil {
		if err := rt.storage.Close(); err != nil {
			rt.logger.Debug("close session storage", logging.Error(err))
		}
	}
	if rt.lock != nil {
		if err := rt.lock.Release(); err != nil {
			rt.logger.Debug("release session lock", logging.Error(err))
		}
	}
}
