package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveSocketPath_ExplicitOverrideWins(t *testing.T) {
	path := ResolveSocketPath("/tmp/custom.sock", envMap(map[string]string{"XDG_RUNTIME_DIR": "/run/user/1000"}))
	require.Equal(t, "/tmp/custom.sock", path)
}

func TestResolveSocketPath_DerivedFromRuntimeDir(t *testing.T) {
	path := ResolveSocketPath("", envMap(map[string]string{"XDG_RUNTIME_DIR": "/run/user/1000"}))
	require.Equal(t, "/run/user/1000/bb-auth.sock", path)
}

func TestResolveSocketPath_FallsBackWhenRuntimeDirUnset(t *testing.T) {
	path := ResolveSocketPath("", envMap(nil))
	require.Contains(t, path, "bb-auth.sock")
	require.Contains(t, path, "bb-auth-")
}

func TestApplyFallbackEnv_IdleFloorEnforced(t *testing.T) {
	cfg := ApplyFallbackEnv(Defaults().Fallback, envMap(map[string]string{"BB_AUTH_FALLBACK_IDLE_MS": "1000"}))
	require.Equal(t, minIdleMS, cfg.IdleMS)
}

func TestApplyFallbackEnv_IdleAboveFloorRespected(t *testing.T) {
	cfg := ApplyFallbackEnv(Defaults().Fallback, envMap(map[string]string{"BB_AUTH_FALLBACK_IDLE_MS": "60000"}))
	require.Equal(t, 60000, cfg.IdleMS)
}

func TestApplyFallbackEnv_ActionTimeoutClampedBothEnds(t *testing.T) {
	low := ApplyFallbackEnv(Defaults().Fallback, envMap(map[string]string{"BB_AUTH_FALLBACK_ACTION_TIMEOUT_MS": "10"}))
	require.Equal(t, minActionTimeoutMS, low.ActionTimeoutMS)

	high := ApplyFallbackEnv(Defaults().Fallback, envMap(map[string]string{"BB_AUTH_FALLBACK_ACTION_TIMEOUT_MS": "999999"}))
	require.Equal(t, maxActionTimeoutMS, high.ActionTimeoutMS)
}

func TestApplyFallbackEnv_MalformedValueIgnored(t *testing.T) {
	cfg := ApplyFallbackEnv(Defaults().Fallback, envMap(map[string]string{"BB_AUTH_FALLBACK_IDLE_MS": "not-a-number"}))
	require.Equal(t, Defaults().Fallback.IdleMS, cfg.IdleMS)
}

func TestApplyFallbackEnv_UnsetLeavesDefaults(t *testing.T) {
	cfg := ApplyFallbackEnv(Defaults().Fallback, envMap(nil))
	require.Equal(t, Defaults().Fallback, cfg)
}

func TestFallbackConfig_DurationConversions(t *testing.T) {
	cfg := FallbackConfig{IdleMS: 5000, ActionTimeoutMS: 250}
	require.Equal(t, int64(5000), cfg.IdleDuration().Milliseconds())
	require.Equal(t, int64(250), cfg.ActionTimeoutDuration().Milliseconds())
}

func TestWriteDefaultConfig_CreatesFileAndParentDir(t *testing.T) {
	dir := t.TempDir() + "/nested"
	path := dir + "/config.yaml"

	require.NoError(t, WriteDefaultConfig(path))
	require.FileExists(t, path)
}
