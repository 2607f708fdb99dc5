// Package config provides XDG path helpers.
package config

import (
	"os"
	"path/filepath"
)

const appDir = "klsim"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	return xdgHome("XDG_CONFIG_HOME", ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	return xdgHome("XDG_DATA_HOME", ".local", "share")
}

// XDGStateHome returns the XDG state home or a default fallback.
func XDGStateHome() string {
	return xdgHome("XDG_STATE_HOME", ".local", "state")
}

func xdgHome(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appDir, "config.toml")
}

// DefaultPrefsPath returns the default preferences path.
func DefaultPrefsPath() string {
	return filepath.Join(XDGConfigHome(), appDir, "prefs.toml")
}

// DefaultDBPath returns the default path for the SQLite database.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), appDir, "klsim.db")
}

// DefaultKeyPath returns the default path of the report encryption key.
func DefaultKeyPath() string {
	return filepath.Join(XDGDataHome(), appDir, "vault.key")
}

// DefaultReportDir returns the default directory for generated reports.
func DefaultReportDir() string {
	return filepath.Join(XDGDataHome(), appDir, "reports")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(XDGStateHome(), appDir, "klsim.log")
}
