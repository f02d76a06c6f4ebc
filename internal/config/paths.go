package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".liverelay"

// Paths holds resolved filesystem paths for liverelay data.
type Paths struct {
	Base   string // ~/.liverelay
	Config string // ~/.liverelay/config.yaml
	Logs   string // ~/.liverelay/logs
	Data   string // ~/.liverelay/data
}

// ResolvePaths computes all standard paths from the home directory.
// If LIVERELAY_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("LIVERELAY_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Logs:   filepath.Join(base, "logs"),
		Data:   filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Logs, p.Data}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
