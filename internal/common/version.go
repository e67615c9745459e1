package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the bare version string.
func GetVersion() string {
	return Version
}

// GetFullVersion returns the version with build metadata appended.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// LoadVersionFromFile overrides Version with the contents of a
// .version file next to the executable, when one exists. Deployments
// drop the file alongside the binary instead of rebuilding.
func LoadVersionFromFile() string {
	execPath, err := os.Executable()
	if err != nil {
		return Version
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(execPath), ".version"))
	if err != nil {
		return Version
	}

	if v := strings.TrimSpace(string(data)); v != "" {
		Version = v
	}
	return Version
}
