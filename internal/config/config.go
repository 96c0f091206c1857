// Package config holds the process-wide viper configuration.
//
// Precedence, highest first: explicit Set calls (CLI flags), CUTOVER_*
// environment variables, cutover.yaml, registered defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/steveyegge/cutover/internal/types"
)

// ConfigFileName is the file searched for in ./.cutover and ~/.config/cutover.
const ConfigFileName = "cutover.yaml"

// Config keys
const (
	KeyStorageBackend     = "storage.backend"
	KeyStoragePath        = "storage.path"
	KeyStorageDSN         = "storage.dsn"
	KeyStorageLockTimeout = "storage.lock-timeout"

	KeyTenant  = "tenant"
	KeyProgram = "program"
	KeyActor   = "actor"
	KeyJSON    = "json"

	KeyPlanCodePrefix     = "plan.code-prefix"
	KeyPlanHypercareWeeks = "plan.hypercare-weeks"
	KeyExitSLAThreshold   = "exit.sla-threshold-pct"

	KeyServerAddr = "server.addr"
	KeyLogFormat  = "log.format"
	KeyLogLevel   = "log.level"

	KeyNotifyWebhookURL    = "notify.webhook-url"
	KeyNotifyWebhookSecret = "notify.webhook-secret"
	KeyNotifyEvents        = "notify.events"
)

var (
	v  *viper.Viper
	mu sync.RWMutex
)

// Initialize sets up the viper singleton. Safe to call repeatedly; each call
// starts from a fresh instance so tests see changes to the environment.
func Initialize() error {
	nv := viper.New()
	nv.SetConfigType("yaml")

	// Explicit file wins over discovery.
	if path := os.Getenv("CUTOVER_CONFIG"); path != "" {
		nv.SetConfigFile(path)
	} else if path := findConfigFile(); path != "" {
		nv.SetConfigFile(path)
	}

	nv.SetEnvPrefix("CUTOVER")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	registerDefaults(nv)

	if nv.ConfigFileUsed() != "" {
		if err := nv.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	mu.Lock()
	v = nv
	mu.Unlock()
	return nil
}

func registerDefaults(nv *viper.Viper) {
	nv.SetDefault(KeyStorageBackend, "sqlite")
	nv.SetDefault(KeyStoragePath, defaultDBPath())
	nv.SetDefault(KeyStorageDSN, "")
	nv.SetDefault(KeyStorageLockTimeout, "30s")

	nv.SetDefault(KeyTenant, "")
	nv.SetDefault(KeyProgram, "")
	nv.SetDefault(KeyActor, "")
	nv.SetDefault(KeyJSON, false)

	nv.SetDefault(KeyPlanCodePrefix, "CUT")
	nv.SetDefault(KeyPlanHypercareWeeks, 4)
	nv.SetDefault(KeyExitSLAThreshold, 95.0)

	nv.SetDefault(KeyServerAddr, ":8420")
	nv.SetDefault(KeyLogFormat, "text")
	nv.SetDefault(KeyLogLevel, "info")

	nv.SetDefault(KeyNotifyWebhookURL, "")
	nv.SetDefault(KeyNotifyWebhookSecret, "")
	nv.SetDefault(KeyNotifyEvents, "")
}

// findConfigFile walks up from the working directory looking for
// .cutover/cutover.yaml, then tries the user config dir.
func findConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, ".cutover", ConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(configDir, "cutover", ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func defaultDBPath() string {
	return filepath.Join(".cutover", "cutover.db")
}

func get() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()
	return v
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if cv := get(); cv != nil {
		return cv.ConfigFileUsed()
	}
	return ""
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if cv := get(); cv != nil {
		return cv.GetString(key)
	}
	return ""
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if cv := get(); cv != nil {
		return cv.GetBool(key)
	}
	return false
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if cv := get(); cv != nil {
		return cv.GetInt(key)
	}
	return 0
}

// GetFloat64 retrieves a float configuration value
func GetFloat64(key string) float64 {
	if cv := get(); cv != nil {
		return cv.GetFloat64(key)
	}
	return 0
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if cv := get(); cv != nil {
		return cv.GetDuration(key)
	}
	return 0
}

// Set overrides a value for this process (used for CLI flags).
func Set(key string, value any) {
	if cv := get(); cv != nil {
		cv.Set(key, value)
	}
}

// AllSettings returns the merged settings map.
func AllSettings() map[string]any {
	if cv := get(); cv != nil {
		return cv.AllSettings()
	}
	return nil
}

// SLATargets returns installation-wide SLA targets read from sla.<P1..P4>.
// Severities with no or invalid configuration are omitted so callers fall
// back to the built-in table.
func SLATargets() map[types.Severity]types.SLATarget {
	cv := get()
	if cv == nil {
		return nil
	}
	out := make(map[types.Severity]types.SLATarget)
	for _, sev := range types.AllSeverities() {
		key := "sla." + strings.ToLower(string(sev))
		if !cv.IsSet(key) {
			continue
		}
		var target types.SLATarget
		if err := cv.UnmarshalKey(key, &target); err != nil {
			slog.Warn("ignoring invalid sla config", "severity", sev, "error", err)
			continue
		}
		if err := target.Validate(); err != nil {
			slog.Warn("ignoring invalid sla config", "severity", sev, "error", err)
			continue
		}
		out[sev] = target
	}
	return out
}

// Watch re-reads the config file whenever it changes and calls onChange
// afterwards. It is a no-op when no config file was loaded.
func Watch(onChange func()) {
	cv := get()
	if cv == nil || cv.ConfigFileUsed() == "" {
		return
	}
	cv.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		slog.Info("config file changed", "path", e.Name)
		if onChange != nil {
			onChange()
		}
	})
	cv.WatchConfig()
}
