package launcher

import (
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/anthonyhab/bb-auth/internal/manifest"
)

const (
	legacyEnvID     = "__legacy_env__"
	legacyDefaultID = "__legacy_default__"
)

// Candidate is a resolved launch target: an executable plus args/env,
// ready to spawn.
type Candidate struct {
	ID          string
	DisplayName string
	Exec        string
	Args        []string
	Env         []string
}

// findExecutable resolves a manifest's exec field to an executable file:
// absolute paths (or any path containing a slash) are used literally;
// bare names are resolved through PATH, grounded on the teacher's
// findExecutable helper (known-path-list then exec.LookPath).
func findExecutable(exec_ string) string {
	if strings.Contains(exec_, "/") {
		return exec_
	}
	resolved, err := exec.LookPath(exec_)
	if err != nil {
		return ""
	}
	return resolved
}

func isExecutableFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

// SelectCandidate implements the launcher's selection algorithm (§4.5):
//  1. legacy env override path, if set; a set path that is not
//     executable yields a skip message and no candidate.
//  2. otherwise the highest-(priority desc, id asc)-ranked autostart
//     manifest whose exec resolves to an executable file.
//  3. otherwise a configured default fallback path, if executable.
//  4. otherwise no candidate, with a "skip: no launchable provider
//     candidate" message.
func SelectCandidate(manifests []manifest.Manifest, legacyFallbackPath, defaultFallbackPath, socketPath string) (Candidate, string) {
	legacyEnvPath := strings.TrimSpace(legacyFallbackPath)
	if legacyEnvPath != "" {
		if !isExecutableFile(legacyEnvPath) {
			return Candidate{}, "skip: BB_AUTH_FALLBACK_PATH is not executable: " + legacyEnvPath
		}
		return Candidate{
			ID:          legacyEnvID,
			DisplayName: "legacy-env",
			Exec:        legacyEnvPath,
			Args:        socketArgs(nil, socketPath),
			Env:         os.Environ(),
		}, ""
	}

	autostart := make([]manifest.Manifest, 0, len(manifests))
	for _, m := range manifests {
		if m.Autostart {
			autostart = append(autostart, m)
		}
	}
	sort.SliceStable(autostart, func(i, j int) bool {
		if autostart[i].Priority != autostart[j].Priority {
			return autostart[i].Priority > autostart[j].Priority
		}
		return autostart[i].ID < autostart[j].ID
	})

	for _, m := range autostart {
		resolved := findExecutable(m.Exec)
		if !isExecutableFile(resolved) {
			continue
		}
		return Candidate{
			ID:          m.ID,
			DisplayName: m.Name,
			Exec:        resolved,
			Args:        socketArgs(m.Args, socketPath),
			Env:         mergeEnv(m.Env),
		}, ""
	}

	fallbackPath := strings.TrimSpace(defaultFallbackPath)
	if fallbackPath == "" || !isExecutableFile(fallbackPath) {
		return Candidate{}, "skip: no launchable provider candidate"
	}
	return Candidate{
		ID:          legacyDefaultID,
		DisplayName: "legacy-default",
		Exec:        fallbackPath,
		Args:        socketArgs(nil, socketPath),
		Env:         os.Environ(),
	}, ""
}

func socketArgs(base []string, socketPath string) []string {
	args := make([]string, len(base), len(base)+2)
	copy(args, base)
	if socketPath != "" {
		args = append(args, "--socket", socketPath)
	}
	return args
}

func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
