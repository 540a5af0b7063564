package module

import (
	"os"
	"path/filepath"
)

// lockfiles maps a lockfile to the package manager that writes it,
// in detection order.
var lockfiles = []struct {
	file    string
	manager string
}{
	{"yarn.lock", "yarn"},
	{"pnpm-lock.yaml", "pnpm"},
}

// PackageManager detects the package manager used in dir.
func PackageManager(dir string) string {
	for _, lf := range lockfiles {
		if _, err := os.Stat(filepath.Join(dir, lf.file)); err == nil {
			return lf.manager
		}
	}
	return "npm"
}

// DefaultSettings is the lowest configuration tier for the module in dir.
func DefaultSettings(dir string) Settings {
	command := SingleCommand(PackageManager(dir) + " run build")
	return Settings{
		Includes: DefaultIncludes,
		Command:  &command,
	}
}
