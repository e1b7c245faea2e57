package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Render every page of the book once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.renderer.Bootstrap(); err != nil {
				return err
			}
			pages, err := a.renderer.RenderBook(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "rendered %d pages into %s\n", len(pages), a.cfg.OutputDir)
			if err != nil {
				return fmt.Errorf("some pages failed to render: %w", err)
			}
			return nil
		},
	}
}
