package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/tinyland-inc/gsbridge/pkg/authority"
	"github.com/tinyland-inc/gsbridge/pkg/config"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
)

const Logo = "🌉"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

var (
	configMu       sync.RWMutex
	configOverride string
)

// SetConfigPath replaces the default config location for this process.
func SetConfigPath(path string) {
	configMu.Lock()
	configOverride = path
	configMu.Unlock()
}

func GetConfigPath() string {
	configMu.RLock()
	override := configOverride
	configMu.RUnlock()
	if override != "" {
		return override
	}
	if env := os.Getenv("GSBRIDGE_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gsbridge", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// OpenAuthority layers the static users from config over the sqlite store.
// If the database cannot be opened only the static users are used. The
// returned func closes the database.
func OpenAuthority(cfg *config.Config) (authority.Store, func()) {
	static := authority.NewMemoryStore(cfg.Authority.Users)

	db, err := authority.OpenSQLite(cfg.AuthorityDBPath())
	if err != nil {
		logger.WarnCF("authority", "Authority database unavailable", map[string]any{
			"path":  cfg.AuthorityDBPath(),
			"error": err.Error(),
		})
		return static, func() {}
	}
	return authority.Layered{static, db}, func() { db.Close() }
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
