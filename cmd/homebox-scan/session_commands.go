package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Duelion/homebox-companion-sub001/internal/session"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or discard the saved scan session",
	}
	sessionCmd.AddCommand(newSessionStatusCommand(ctx))
	sessionCmd.AddCommand(newSessionResumeCommand(ctx))
	sessionCmd.AddCommand(newSessionClearCommand(ctx))
	return sessionCmd
}

type sessionStatusView struct {
	Saved     bool      `json:"saved" yaml:"saved"`
	Status    string    `json:"status,omitempty" yaml:"status,omitempty"`
	Reached   string    `json:"reached,omitempty" yaml:"reached,omitempty"`
	Route     string    `json:"route,omitempty" yaml:"route,omitempty"`
	Location  string    `json:"location,omitempty" yaml:"location,omitempty"`
	Images    int       `json:"images" yaml:"images"`
	Detected  int       `json:"detected" yaml:"detected"`
	Confirmed int       `json:"confirmed" yaml:"confirmed"`
	Submitted int       `json:"submitted" yaml:"submitted"`
	SavedAt   time.Time `json:"saved_at,omitzero" yaml:"saved_at,omitempty"`
}

func newSessionStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved session, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ctx.format()
			if err != nil {
				return err
			}
			view, err := loadSessionStatus(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			if handled, err := writeStructured(cmd, format, view); handled {
				return err
			}
			out := cmd.OutOrStdout()
			if !view.Saved {
				fmt.Fprintln(out, "No saved session")
				return nil
			}
			rows := [][]string{
				{"Status", view.Status},
				{"Reached", view.Reached},
				{"Resumes at", view.Route},
				{"Location", view.Location},
				{"Photos", strconv.Itoa(view.Images)},
				{"Detected", strconv.Itoa(view.Detected)},
				{"Confirmed", strconv.Itoa(view.Confirmed)},
				{"Submitted", strconv.Itoa(view.Submitted)},
				{"Saved", view.SavedAt.Local().Format(time.DateTime)},
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func loadSessionStatus(ctx context.Context, c *commandContext) (sessionStatusView, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return sessionStatusView{}, err
	}
	storage, err := session.OpenFromConfig(ctx, cfg, c.loggerValue())
	if err != nil {
		return sessionStatusView{}, err
	}
	defer storage.Close()

	summary, ok := storage.Persister.Summary(ctx)
	if !ok {
		return sessionStatusView{}, nil
	}
	return sessionStatusView{
		Saved:     true,
		Status:    string(summary.Status),
		Reached:   string(summary.Reached),
		Route:     string(summary.Route),
		Location:  summary.LocationName(),
		Images:    summary.Counts.Images,
		Detected:  summary.Counts.Detected,
		Confirmed: summary.Counts.Confirmed,
		Submitted: summary.Counts.Submitted,
		SavedAt:   summary.SavedAt,
	}, nil
}

func newSessionResumeCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue the saved session in the scan wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, ctx, scanOptions{resume: true, yes: yes})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm and submit remaining items without prompting")
	return cmd
}

func newSessionClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := session.AcquireLock(cfg.LockPath())
			if err != nil {
				if errors.Is(err, session.ErrLocked) {
					return errors.New("a scan wizard is running; quit it before clearing the session")
				}
				return err
			}
			defer lock.Release()

			storage, err := session.OpenFromConfig(cmd.Context(), cfg, ctx.loggerValue())
			if err != nil {
				return err
			}
			defer storage.Close()

			if _, ok := storage.Persister.Summary(cmd.Context()); !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved session")
				return nil
			}
			storage.Persister.Clear()
			if err := storage.Persister.Flush(cmd.Context()); err != nil {
				return err
			}
			if err := storage.Persister.LastError(); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved session cleared")
			return nil
		},
	}
}
