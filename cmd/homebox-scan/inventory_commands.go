package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Duelion/homebox-companion-sub001/internal/services/homebox"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to Homebox and cache the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withInventory(cmd, func(c context.Context, inv *inventory) error {
				if _, err := inv.tokens.Login(c); err != nil {
					return fmt.Errorf("homebox login: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Logged in to %s\n", inv.client.BaseURL())
				if expires := inv.tokens.ExpiresAt(); !expires.IsZero() {
					fmt.Fprintf(out, "Token expires %s\n", expires.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}
}

type locationView struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

func newLocationsCommand(ctx *commandContext) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "List Homebox locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ctx.format()
			if err != nil {
				return err
			}
			return ctx.withInventory(cmd, func(c context.Context, inv *inventory) error {
				token, err := inv.tokens.Token(c)
				if err != nil {
					return err
				}
				tree, err := inv.client.LocationTree(c, token)
				if err != nil {
					return err
				}
				views := make([]locationView, 0)
				for _, loc := range homebox.FlattenTree(tree) {
					if filter != "" && !strings.Contains(strings.ToLower(loc.Path), strings.ToLower(filter)) {
						continue
					}
					views = append(views, locationView{ID: loc.ID, Name: loc.Name, Path: loc.Path})
				}
				if handled, err := writeStructured(cmd, format, views); handled {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No locations found")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{v.Path, v.ID})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Location", "ID"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only show locations whose path contains this text")
	return cmd
}

type labelView struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func newLabelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List Homebox labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ctx.format()
			if err != nil {
				return err
			}
			return ctx.withInventory(cmd, func(c context.Context, inv *inventory) error {
				token, err := inv.tokens.Token(c)
				if err != nil {
					return err
				}
				labels, err := inv.client.Labels(c, token)
				if err != nil {
					return err
				}
				views := make([]labelView, 0, len(labels))
				for _, label := range labels {
					views = append(views, labelView{ID: label.ID, Name: label.Name, Description: label.Description})
				}
				if handled, err := writeStructured(cmd, format, views); handled {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No labels found")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{v.Name, v.ID, v.Description})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Label", "ID", "Description"}, rows, nil))
				return nil
			})
		},
	}
}
