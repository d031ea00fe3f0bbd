package crackmnist

import (
	"os"
	"path/filepath"
)

// RootEnv overrides the default data directory.
const RootEnv = "CRACKMNIST_ROOT"

// DefaultRoot returns $CRACKMNIST_ROOT, or ~/.crackmnist. It falls back to
// .crackmnist in the working directory when no home directory is known.
func DefaultRoot() string {
	if dir := os.Getenv(RootEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crackmnist"
	}
	return filepath.Join(home, ".crackmnist")
}
