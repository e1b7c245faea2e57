package cmd

import (
	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "scribes",
		Short: "scribes - markdown books with pluggable syntax",
		Long: `scribes renders a directory of markdown pages into HTML and serves them.

Pages pull in syntax plugins with @import directives, either from the local
plugins directory (@import draw_func) or from a remote repository archive
(@import from owner/repo:path/to/plugin).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./scribes.yaml or $SCRIBES_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newBuildCommand(opts))
	rootCmd.AddCommand(newFetchCommand(opts))

	return rootCmd
}
