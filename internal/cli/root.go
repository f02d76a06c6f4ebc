// Package cli wires up the liverelay command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/soyeahso/liverelay/internal/config"
	"github.com/soyeahso/liverelay/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liverelay",
		Short: "liverelay — real-time multimodal chat relay",
		Long: "liverelay is a session proxy that relays streamed audio, video, and text\n" +
			"between clients and a multimodal AI streaming service, and mediates the\n" +
			"model's tool calls against external HTTP services.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.liverelay/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
