package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/services/homebox"
	"github.com/Duelion/homebox-companion-sub001/internal/session"
)

type commandContext struct {
	configFlag  *string
	outputFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, outputFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		outputFlag:  outputFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) format() (outputFormat, error) {
	if c.outputFlag == nil {
		return formatTable, nil
	}
	return parseOutputFormat(*c.outputFlag)
}

// loggerValue writes to the log file, and to stderr with --verbose, so log
// lines do not interleave with wizard prompts.
func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil || cfg == nil {
			c.logger = logging.NewNop()
			return
		}
		outputs := []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)}
		if c.verboseFlag != nil && *c.verboseFlag {
			outputs = append(outputs, "stderr")
		}
		logger, err := logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: outputs,
		})
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

// inventory bundles a Homebox client with a token store cached in the
// session database.
type inventory struct {
	client *homebox.Client
	tokens *homebox.TokenStore
	store  *session.Store
}

func (c *commandContext) openInventory() (*inventory, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := session.Open(cfg.Session.Path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	inv := newInventory(cfg, store, c.loggerValue())
	return inv, nil
}

func newInventory(cfg *config.Config, store *session.Store, logger *slog.Logger) *inventory {
	client := homebox.NewClient(homebox.Config{
		BaseURL:        cfg.Homebox.URL,
		TimeoutSeconds: cfg.Homebox.TimeoutSeconds,
		RetryAttempts:  cfg.Homebox.RetryAttempts,
	}, homebox.WithLogger(logger))
	tokens := homebox.NewTokenStore(client, store.KV(0), homebox.Credentials{
		Username:     cfg.Homebox.Username,
		Password:     cfg.Homebox.Password,
		StayLoggedIn: cfg.Homebox.StayLoggedIn,
	}, logger)
	return &inventory{client: client, tokens: tokens, store: store}
}

func (i *inventory) Close() error {
	if i == nil || i.store == nil {
		return nil
	}
	return i.store.Close()
}

func (c *commandContext) withInventory(cmd *cobra.Command, fn func(context.Context, *inventory) error) error {
	inv, err := c.openInventory()
	if err != nil {
		return err
	}
	defer inv.Close()
	return fn(cmd.Context(), inv)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
