package main

import (
	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan [photo...]",
		Short: "Photograph, review, and add items to Homebox",
		Long: `Run the scan wizard: pick a location, analyze photos, review each
detected item, and create the confirmed items in Homebox.

Photos given as arguments are queued before analysis. With --yes every
detected item is confirmed and submitted without prompting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.photos = args
			return runScan(cmd, ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.location, "location", "l", "", "Location id, name, or path")
	cmd.Flags().StringVar(&opts.parent, "parent", "", "Create items inside this existing item id")
	cmd.Flags().StringVar(&opts.instructions, "instructions", "", "Extra hints for the vision model")
	cmd.Flags().BoolVar(&opts.singleItem, "single-item", false, "Treat each photo as one item")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Confirm and submit every detected item without prompting")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Resume the saved session without asking")
	return cmd
}

func runScan(cmd *cobra.Command, ctx *commandContext, opts scanOptions) error {
	rt, err := openRuntime(cmd.Context(), ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return newWizard(rt, cmd.InOrStdin(), cmd.OutOrStdout(), opts).run(cmd.Context())
}
