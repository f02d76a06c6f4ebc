package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and API keys can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Upstream.APIKey = expandEnvVars(cfg.Upstream.APIKey)
	for name, tool := range cfg.Tools.Endpoints {
		tool.URL = expandEnvVars(tool.URL)
		cfg.Tools.Endpoints[name] = tool
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = def.Gateway.Auth.Mode
	}
	if cfg.Upstream.AuthMode == "" {
		cfg.Upstream.AuthMode = def.Upstream.AuthMode
	}
	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = def.Upstream.Model
	}
	if cfg.Upstream.Voice == "" {
		cfg.Upstream.Voice = def.Upstream.Voice
	}
	if len(cfg.Upstream.ResponseModalities) == 0 {
		cfg.Upstream.ResponseModalities = def.Upstream.ResponseModalities
	}
	if cfg.Upstream.HandshakeTimeoutSec == 0 {
		cfg.Upstream.HandshakeTimeoutSec = def.Upstream.HandshakeTimeoutSec
	}
	if cfg.Tools.TimeoutSec == 0 {
		cfg.Tools.TimeoutSec = def.Tools.TimeoutSec
	}
	if cfg.Session.IdleTimeoutSec == 0 {
		cfg.Session.IdleTimeoutSec = def.Session.IdleTimeoutSec
	}
	if cfg.Session.DrainTimeoutSec == 0 {
		cfg.Session.DrainTimeoutSec = def.Session.DrainTimeoutSec
	}
	if cfg.Session.MaxConcurrent == 0 {
		cfg.Session.MaxConcurrent = def.Session.MaxConcurrent
	}
	if cfg.Summary.IntervalSec == 0 {
		cfg.Summary.IntervalSec = def.Summary.IntervalSec
	}
	if cfg.Summary.MinChars == 0 {
		cfg.Summary.MinChars = def.Summary.MinChars
	}
	if cfg.Summary.MaxTokens == 0 {
		cfg.Summary.MaxTokens = def.Summary.MaxTokens
	}
	if cfg.Summary.Model == "" {
		cfg.Summary.Model = def.Summary.Model
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = def.Store.Backend
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Telemetry.IntervalSec == 0 {
		cfg.Telemetry.IntervalSec = def.Telemetry.IntervalSec
	}
}

// applyEnvOverrides reads LIVERELAY_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIVERELAY_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("LIVERELAY_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("LIVERELAY_UPSTREAM_ENDPOINT"); v != "" {
		cfg.Upstream.Endpoint = v
	}
	if v := os.Getenv("LIVERELAY_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("LIVERELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
