package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18890,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Upstream: UpstreamConfig{
			AuthMode:            "api-key",
			Model:               "models/gemini-live-2.5-flash-preview-native-audio",
			Voice:               "Puck",
			ResponseModalities:  []string{"AUDIO"},
			HandshakeTimeoutSec: 15,
			Transcription:       true,
		},
		Tools: ToolsConfig{
			TimeoutSec: 10,
		},
		Session: SessionConfig{
			IdleTimeoutSec:  300,
			DrainTimeoutSec: 5,
			MaxConcurrent:   64,
		},
		Summary: SummaryConfig{
			IntervalSec: 60,
			MinChars:    500,
			MaxTokens:   1024,
			Model:       "gemini-2.5-flash",
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			IntervalSec: 10,
		},
	}
}
