package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/flmcompanion/flmcompanion/logging"
)

const (
	AppDirName     = "flm-companion"
	ConfigFileName = "config.json"
)

func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to get user home directory: %v", err)

		return ""
	}
	return homeDir
}

// GetConfigDir returns the per-user directory holding the configuration JSON file.
func GetConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(GetHomeDir(), ".config", AppDirName)
	}
	return filepath.Join(dir, AppDirName)
}

// GetConfigPath returns the path to the configuration JSON file.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		return filepath.Join(GetHomeDir(), path[1:])
	}
	return path
}

// DirOf returns the directory part of a path written with either separator,
// or "." when the path has none.
func DirOf(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return "."
	}
	if i == 0 {
		return path[:1]
	}
	return path[:i]
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
