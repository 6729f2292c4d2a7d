package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard directories clauder reads and writes.
type Paths struct {
	Data   string // ~/.local/share/clauder
	Config string // ~/.config/clauder
	Cache  string // ~/.cache/clauder
	State  string // ~/.local/state/clauder
}

// GetPaths returns the standard paths for clauder data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "clauder"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "clauder"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "clauder"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "clauder"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the directory used by the storage layer for
// namespaced JSON documents (run history and the like).
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// PermissionsPath returns the default location of the persistent
// permission store.
func (p *Paths) PermissionsPath() string {
	return filepath.Join(p.Data, "permissions.json")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GetConfigDir returns the config directory to use.
// Prefers CLAUDER_CONFIG_DIR, then the XDG config directory.
func GetConfigDir() string {
	if dir := os.Getenv("CLAUDER_CONFIG_DIR"); dir != "" {
		return dir
	}
	return GetPaths().Config
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetConfigDir(), "clauder.json")
}

// WorkspaceConfigPath returns the path to the workspace config file.
func WorkspaceConfigPath(directory string) string {
	return filepath.Join(directory, "clauder.yaml")
}
