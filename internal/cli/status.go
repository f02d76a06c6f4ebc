package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/liverelay/internal/config"
	"github.com/soyeahso/liverelay/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show liverelay status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("liverelay %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Gateway:  port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)
			fmt.Printf("Upstream: model=%s auth=%s voice=%s\n",
				cfg.Upstream.Model, cfg.Upstream.AuthMode, cfg.Upstream.Voice)
			fmt.Printf("Session:  idle=%ds drain=%ds max=%d\n",
				cfg.Session.IdleTimeoutSec, cfg.Session.DrainTimeoutSec, cfg.Session.MaxConcurrent)

			if len(cfg.Tools.Endpoints) > 0 {
				fmt.Printf("Tools:    %d configured\n", len(cfg.Tools.Endpoints))
				for name, entry := range cfg.Tools.Endpoints {
					fmt.Printf("  - %s → %s\n", name, entry.URL)
				}
			} else {
				fmt.Println("Tools:    (none configured)")
			}

			if cfg.Summary.Enabled {
				fmt.Printf("Summary:  model=%s interval=%ds\n", cfg.Summary.Model, cfg.Summary.IntervalSec)
			}
			if cfg.Store.Backend == "sqlite" {
				fmt.Printf("Store:    sqlite path=%s\n", cfg.Store.Path)
			}

			// Probe a running instance.
			probeHealth(cfg)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}
}

func probeHealth(cfg config.Config) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Gateway.Port))
	if err != nil {
		fmt.Println("\nServer:   not running")
		return
	}
	defer resp.Body.Close()

	var health struct {
		Status   string `json:"status"`
		Version  string `json:"version"`
		Uptime   string `json:"uptime"`
		Sessions int    `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		fmt.Println("\nServer:   unreadable health response")
		return
	}
	fmt.Printf("\nServer:   %s version=%s uptime=%s sessions=%d\n",
		health.Status, health.Version, health.Uptime, health.Sessions)
}
