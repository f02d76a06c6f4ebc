package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/liverelay/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigCheckCmd())

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(paths.Config)
		},
	}
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			issues := config.Validate(&cfg)
			if len(issues) == 0 {
				fmt.Println("config OK")
				return nil
			}
			for _, issue := range issues {
				fmt.Printf("%s: %s\n", issue.Path, issue.Message)
			}
			return fmt.Errorf("%d issue(s) found", len(issues))
		},
	}
}
