package config

import (
	"os"
	"path/filepath"
)

func DefaultConfigDir() string {
	if v := os.Getenv("SAPRUNNER_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".saprunner")
}

// DefaultConfigPath honours SAPRUNNER_CONFIG before falling back to the home dir.
func DefaultConfigPath() string {
	if v := os.Getenv("SAPRUNNER_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
