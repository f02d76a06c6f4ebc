package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	validAuthModes := []string{"token", "none"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}

	if cfg.Upstream.Endpoint == "" {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.endpoint",
			Message: "endpoint is required",
		})
	} else if !strings.HasPrefix(cfg.Upstream.Endpoint, "ws://") && !strings.HasPrefix(cfg.Upstream.Endpoint, "wss://") {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.endpoint",
			Message: fmt.Sprintf("must be a ws:// or wss:// URL, got %q", cfg.Upstream.Endpoint),
		})
	}

	validUpstreamAuth := []string{"api-key", "oauth"}
	if cfg.Upstream.AuthMode != "" && !slices.Contains(validUpstreamAuth, cfg.Upstream.AuthMode) {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.authMode",
			Message: fmt.Sprintf("must be one of %v, got %q", validUpstreamAuth, cfg.Upstream.AuthMode),
		})
	}
	if cfg.Upstream.AuthMode == "api-key" && cfg.Upstream.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.apiKey",
			Message: "required when authMode: api-key",
		})
	}

	for name, tool := range cfg.Tools.Endpoints {
		if tool.URL == "" {
			issues = append(issues, ValidationIssue{
				Path:    "tools.endpoints." + name,
				Message: "url is required",
			})
			continue
		}
		if !strings.HasPrefix(tool.URL, "http://") && !strings.HasPrefix(tool.URL, "https://") {
			issues = append(issues, ValidationIssue{
				Path:    "tools.endpoints." + name,
				Message: fmt.Sprintf("must be an http:// or https:// URL, got %q", tool.URL),
			})
		}
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validBackends := []string{"sqlite", "none"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "store.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Store.Backend),
		})
	}

	if cfg.Summary.Enabled && cfg.Summary.Endpoint == "" {
		issues = append(issues, ValidationIssue{
			Path:    "summary.endpoint",
			Message: "required when summary is enabled",
		})
	}

	return issues
}
