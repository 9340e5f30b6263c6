package cmd

import (
	"path/filepath"
	"runtime"

	"github.com/Dhenz14/HivePoA-sub000/shared/fileutil"
)

// DefaultDataDir is the default data directory to use for the databases and other
// persistence requirements.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := fileutil.HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "HivePoA")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Local", "HivePoA")
		} else {
			return filepath.Join(home, ".hivepoa")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}
