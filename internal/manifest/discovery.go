package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/anthonyhab/bb-auth/internal/log"
)

// SearchDirs returns the discovery directories in precedence order (§4.4):
// 1. BB_AUTH_PROVIDER_DIR override, if set and non-empty.
// 2. $XDG_CONFIG_HOME/bb-auth/providers.d (or ~/.config/... default).
// 3. $XDG_DATA_HOME/bb-auth/providers.d (or ~/.local/share/... default).
// 4. A system directory supplied by configuration.
func SearchDirs(env func(string) string, homeDir, systemDir string) []string {
	var dirs []string

	if override := env("BB_AUTH_PROVIDER_DIR"); override != "" {
		dirs = append(dirs, override)
	}

	configHome := env("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(homeDir, ".config")
	}
	dirs = append(dirs, filepath.Join(configHome, "bb-auth", "providers.d"))

	dataHome := env("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(homeDir, ".local", "share")
	}
	dirs = append(dirs, filepath.Join(dataHome, "bb-auth", "providers.d"))

	if systemDir != "" {
		dirs = append(dirs, systemDir)
	}

	return dirs
}

// DiscoveryResult is the outcome of a scan: the deduplicated, validated
// manifests plus any warnings encountered along the way (parse failures,
// validation rejections, duplicate ids) — none of which abort discovery.
type DiscoveryResult struct {
	Manifests []Manifest
	Warnings  []string
}

// Discover scans dirs in order for *.json files in lexical filename order
// within each directory, parsing and validating each, skipping failures
// with a warning, and keeping only the first occurrence of each id.
func Discover(dirs []string) DiscoveryResult {
	var result DiscoveryResult
	seen := make(map[string]bool)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Missing directories are skipped silently (§4.4).
			continue
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if filepath.Ext(e.Name()) != ".json" {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a scanned, operator-controlled provider directory
			if err != nil {
				result.Warnings = append(result.Warnings, "cannot read "+path+": "+err.Error())
				log.Warn(log.CatLauncher, "manifest unreadable", "path", path, "error", err)
				continue
			}

			m, err := Parse(data, path)
			if err != nil {
				result.Warnings = append(result.Warnings, path+": "+err.Error())
				log.Warn(log.CatLauncher, "manifest rejected", "path", path, "error", err)
				continue
			}

			if seen[m.ID] {
				result.Warnings = append(result.Warnings, "duplicate id "+m.ID+" at "+path)
				log.Warn(log.CatLauncher, "duplicate manifest id", "id", m.ID, "path", path)
				continue
			}

			seen[m.ID] = true
			result.Manifests = append(result.Manifests, m)
		}
	}

	return result
}
