package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/liverelay/internal/config"
	"github.com/soyeahso/liverelay/internal/gateway"
	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/session"
	"github.com/soyeahso/liverelay/internal/store"
	"github.com/soyeahso/liverelay/internal/summary"
	"github.com/soyeahso/liverelay/internal/telemetry"
	"github.com/soyeahso/liverelay/internal/tools"
	"github.com/soyeahso/liverelay/internal/upstream"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if cfg.Logging.File != "" {
				level := logLevel
				if level == "" {
					level = cfg.Logging.Level
				}
				log = logging.NewWithFile(cfg.Logging.File, level)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var metrics *telemetry.Metrics
			if cfg.Telemetry.Enabled {
				m, shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
				if err != nil {
					return fmt.Errorf("initializing telemetry: %w", err)
				}
				defer shutdown()
				metrics = m
			}

			var recorder session.Recorder = session.NopRecorder{}
			if cfg.Store.Backend == "sqlite" {
				dbPath := cfg.Store.Path
				if dbPath == "" {
					dbPath = filepath.Join(paths.Data, "liverelay.db")
				}
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				recorder = store.NewRecorder(db)
			}

			systemInstructions := ""
			if cfg.Upstream.SystemInstructionsFile != "" {
				data, err := os.ReadFile(cfg.Upstream.SystemInstructionsFile)
				if err != nil {
					return fmt.Errorf("reading system instructions: %w", err)
				}
				systemInstructions = string(data)
			}

			var credential upstream.Credential
			switch cfg.Upstream.AuthMode {
			case "oauth":
				credential, err = upstream.NewOAuthCredential(ctx)
				if err != nil {
					return fmt.Errorf("resolving upstream credentials: %w", err)
				}
			default:
				credential = upstream.APIKeyCredential{Key: cfg.Upstream.APIKey}
			}

			dispatcher := tools.New(cfg.Tools, log)
			registry := session.NewRegistry(cfg.Session.MaxConcurrent, log)

			upstreamCfg := upstream.Config{
				Endpoint:           cfg.Upstream.Endpoint,
				Credential:         credential,
				Model:              cfg.Upstream.Model,
				Voice:              cfg.Upstream.Voice,
				ResponseModalities: cfg.Upstream.ResponseModalities,
				SystemInstructions: systemInstructions,
				Declarations:       dispatcher.Declarations(),
				HandshakeTimeout:   time.Duration(cfg.Upstream.HandshakeTimeoutSec) * time.Second,
				Transcription:      cfg.Upstream.Transcription,
			}

			factory := func(id string, client session.ClientConn, onClosed func(string)) *session.Manager {
				adapter := upstream.NewConn(upstreamCfg, log)

				var summarizer session.Summarizer
				if cfg.Summary.Enabled {
					gen := summary.NewGeminiGenerator(
						cfg.Summary.Endpoint, cfg.Upstream.APIKey, cfg.Summary.Model, cfg.Summary.MaxTokens)
					summarizer = summary.NewManager(summary.Config{
						Interval: time.Duration(cfg.Summary.IntervalSec) * time.Second,
						MinChars: cfg.Summary.MinChars,
						Prompt:   cfg.Summary.Prompt,
					}, gen, adapter, log)
				}

				return session.New(session.Config{
					ID:           id,
					IdleTimeout:  time.Duration(cfg.Session.IdleTimeoutSec) * time.Second,
					DrainTimeout: time.Duration(cfg.Session.DrainTimeoutSec) * time.Second,
				}, session.Deps{
					Client:     client,
					Upstream:   adapter,
					Tools:      dispatcher,
					Metrics:    metrics,
					Recorder:   recorder,
					Summarizer: summarizer,
					Log:        log,
					OnClosed:   onClosed,
				})
			}

			srv := gateway.New(cfg, registry, factory, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
