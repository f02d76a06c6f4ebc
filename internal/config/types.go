package config

// Config is the root configuration for liverelay.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Upstream  UpstreamConfig  `yaml:"upstream,omitempty"`
	Tools     ToolsConfig     `yaml:"tools,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Summary   SummaryConfig   `yaml:"summary,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// GatewayConfig controls the client-facing HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode  string `yaml:"mode,omitempty"` // "token" | "none"
	Token string `yaml:"token,omitempty"`
}

// UpstreamConfig describes the upstream AI streaming service.
type UpstreamConfig struct {
	Endpoint               string   `yaml:"endpoint"`           // wss:// bidirectional streaming endpoint
	AuthMode               string   `yaml:"authMode,omitempty"` // "api-key" | "oauth"
	APIKey                 string   `yaml:"apiKey,omitempty"`   // used when authMode: api-key
	Model                  string   `yaml:"model,omitempty"`
	Voice                  string   `yaml:"voice,omitempty"`
	ResponseModalities     []string `yaml:"responseModalities,omitempty"` // e.g. ["AUDIO"]
	SystemInstructionsFile string   `yaml:"systemInstructionsFile,omitempty"`
	HandshakeTimeoutSec    int      `yaml:"handshakeTimeoutSec,omitempty"`
	Transcription          bool     `yaml:"transcription,omitempty"` // request server-side transcriptions
}

// ToolsConfig maps tool names to external HTTP endpoints.
type ToolsConfig struct {
	TimeoutSec int                  `yaml:"timeoutSec,omitempty"`
	Endpoints  map[string]ToolEntry `yaml:"endpoints,omitempty"`
}

// ToolEntry defines one externally hosted tool.
type ToolEntry struct {
	URL         string         `yaml:"url"`
	Description string         `yaml:"description,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty"` // JSON Schema for the tool arguments
}

// SessionConfig defines per-session limits.
type SessionConfig struct {
	IdleTimeoutSec  int `yaml:"idleTimeoutSec,omitempty"`
	DrainTimeoutSec int `yaml:"drainTimeoutSec,omitempty"` // tool-call drain bound during close
	MaxConcurrent   int `yaml:"maxConcurrent,omitempty"`
}

// SummaryConfig controls background compaction of long conversations.
type SummaryConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	IntervalSec int    `yaml:"intervalSec,omitempty"`
	MinChars    int    `yaml:"minChars,omitempty"`
	MaxTokens   int    `yaml:"maxTokens,omitempty"`
	Model       string `yaml:"model,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"` // text-generation endpoint base URL
	Prompt      string `yaml:"prompt,omitempty"`
}

// StoreConfig configures transcript persistence.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" | "none"
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File  string `yaml:"file,omitempty"`
}

// TelemetryConfig controls the OpenTelemetry metrics exporter.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	MetricsFile string `yaml:"metricsFile,omitempty"`
	IntervalSec int    `yaml:"intervalSec,omitempty"`
}
