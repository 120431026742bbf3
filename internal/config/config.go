// Package config provides configuration types and defaults for bb-authd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonyhab/bb-auth/internal/log"
)

// Config holds every tunable bb-authd needs at startup. Every field has a
// mapstructure tag so viper can unmarshal it from a YAML file; socket.path
// and debug are also bound to the --socket and --debug flags. No
// environment variable is bound through viper.
type Config struct {
	Socket   SocketConfig   `mapstructure:"socket"`
	Provider ProviderConfig `mapstructure:"provider"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Actor    ActorConfig    `mapstructure:"actor"`
	Debug    bool           `mapstructure:"debug"`
}

// SocketConfig locates the control socket (§6.1).
type SocketConfig struct {
	// Path overrides the default $XDG_RUNTIME_DIR/bb-auth.sock location.
	Path string `mapstructure:"path"`
}

// ProviderConfig controls manifest discovery (§4.4) and the launcher.
type ProviderConfig struct {
	// Dirs overrides the manifest search path entirely. Empty means "use
	// manifest.SearchDirs' XDG-derived precedence" (BB_AUTH_PROVIDER_DIR,
	// then XDG_CONFIG_HOME, then XDG_DATA_HOME, then a configured system
	// dir) — that function already applies the env var override, so this
	// field exists only for an operator who wants to bypass discovery and
	// name the exact directories.
	Dirs []string `mapstructure:"dirs"`
}

// FallbackConfig controls the built-in text-UI fallback provider's
// watchdog timers (§6.3).
type FallbackConfig struct {
	IdleMS          int    `mapstructure:"idle_ms"`           // BB_AUTH_FALLBACK_IDLE_MS
	ActionTimeoutMS int    `mapstructure:"action_timeout_ms"` // BB_AUTH_FALLBACK_ACTION_TIMEOUT_MS
	// DefaultPath is the launcher's step-3 fallback binary (§4.5), used
	// only when no legacy BB_AUTH_FALLBACK_PATH override and no autostart
	// manifest resolves to an executable.
	DefaultPath string `mapstructure:"default_path"`
}

// ActorConfig controls the process/actor resolver (§4.6) and its
// desktop-entry index (§4.11).
type ActorConfig struct {
	ApplicationDirs      []string `mapstructure:"application_dirs"`
	DesktopDBPath        string   `mapstructure:"desktop_db_path"`
	FingerprintAvailable bool     `mapstructure:"fingerprint_available"`
}

const (
	defaultIdleMS          = 30000
	minIdleMS              = 5000
	defaultActionTimeoutMS = 15000
	minActionTimeoutMS     = 250
	maxActionTimeoutMS     = 120000
)

// Defaults returns the configuration used when no file, flag, or
// environment variable overrides a field.
func Defaults() Config {
	return Config{
		Fallback: FallbackConfig{
			IdleMS:          defaultIdleMS,
			ActionTimeoutMS: defaultActionTimeoutMS,
		},
	}
}

// ResolveSocketPath applies §6.1/§6.3's resolution order: an explicit
// override (CLI flag or SocketConfig.Path) wins, otherwise
// $XDG_RUNTIME_DIR/bb-auth.sock.
func ResolveSocketPath(override string, env func(string) string) string {
	if override != "" {
		return override
	}
	runtimeDir := env("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(os.TempDir(), fmt.Sprintf("bb-auth-%d", os.Getuid()))
	}
	return filepath.Join(runtimeDir, "bb-auth.sock")
}

// ApplyFallbackEnv overlays BB_AUTH_FALLBACK_IDLE_MS and
// BB_AUTH_FALLBACK_ACTION_TIMEOUT_MS (§6.3) onto cfg, clamping each to its
// documented bound. Malformed values are logged and ignored rather than
// rejected outright, matching the daemon's general stance that a bad
// environment variable degrades gracefully instead of failing startup.
func ApplyFallbackEnv(cfg FallbackConfig, env func(string) string) FallbackConfig {
	if raw := env("BB_AUTH_FALLBACK_IDLE_MS"); raw != "" {
		if ms, err := parsePositiveMS(raw); err != nil {
			log.Warn(log.CatConfig, "ignoring malformed BB_AUTH_FALLBACK_IDLE_MS", "value", raw, "error", err)
		} else {
			cfg.IdleMS = max(ms, minIdleMS)
		}
	}
	if raw := env("BB_AUTH_FALLBACK_ACTION_TIMEOUT_MS"); raw != "" {
		if ms, err := parsePositiveMS(raw); err != nil {
			log.Warn(log.CatConfig, "ignoring malformed BB_AUTH_FALLBACK_ACTION_TIMEOUT_MS", "value", raw, "error", err)
		} else {
			cfg.ActionTimeoutMS = clamp(ms, minActionTimeoutMS, maxActionTimeoutMS)
		}
	}
	return cfg
}

func parsePositiveMS(raw string) (int, error) {
	var ms int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &ms); err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", ms)
	}
	return ms, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IdleDuration returns Fallback.IdleMS as a time.Duration.
func (f FallbackConfig) IdleDuration() time.Duration {
	return time.Duration(f.IdleMS) * time.Millisecond
}

// ActionTimeoutDuration returns Fallback.ActionTimeoutMS as a time.Duration.
func (f FallbackConfig) ActionTimeoutDuration() time.Duration {
	return time.Duration(f.ActionTimeoutMS) * time.Millisecond
}

// DefaultConfigTemplate returns the default config as a YAML string with
// explanatory comments, in the teacher's own commented-template style
// (DefaultConfigTemplate in the original config.go).
func DefaultConfigTemplate() string {
	return `# bb-authd configuration
# Fields here are not read from environment variables. The --socket flag
# overrides socket.path.

socket:
  # path: /run/user/1000/bb-auth.sock

provider:
  # dirs:
  #   - /etc/bb-auth/providers.d

fallback:
  idle_ms: 30000
  action_timeout_ms: 15000
  # default_path: /usr/libexec/bb-auth-fallback

actor:
  # application_dirs:
  #   - /usr/share/applications
  # desktop_db_path: /var/lib/bb-auth/desktop-index.db
  fingerprint_available: false
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}
