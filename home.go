package toolrunner

import (
	"os"
	"path/filepath"
)

// Home returns the runner's state directory.
// It defaults to ~/.toolrunner but can be overridden with TOOLRUNNER_HOME.
func Home() string {
	if v := os.Getenv("TOOLRUNNER_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".toolrunner")
}

// DefaultDBPath returns the default file-history database path.
func DefaultDBPath() string {
	return filepath.Join(Home(), "toolrunner.db")
}

// EnsureHome creates the home directory if it doesn't exist.
func EnsureHome() error {
	return os.MkdirAll(Home(), 0o755)
}
