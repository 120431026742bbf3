package launcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anthonyhab/bb-auth/internal/manifest"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755))
	return path
}

func TestSelectCandidate_LegacyEnvOverrideWins(t *testing.T) {
	dir := t.TempDir()
	legacy := writeExecutable(t, dir, "legacy")

	manifests := []manifest.Manifest{
		{ID: "a", Exec: writeExecutable(t, dir, "a"), Autostart: true, Priority: 100},
	}

	c, skip := SelectCandidate(manifests, legacy, "", "/run/bb-auth.sock")
	require.Empty(t, skip)
	require.Equal(t, legacyEnvID, c.ID)
	require.Equal(t, legacy, c.Exec)
	require.Contains(t, c.Args, "--socket")
}

func TestSelectCandidate_PicksHighestPriorityAutostart(t *testing.T) {
	dir := t.TempDir()
	low := writeExecutable(t, dir, "low")
	high := writeExecutable(t, dir, "high")

	manifests := []manifest.Manifest{
		{ID: "low", Exec: low, Autostart: true, Priority: 10},
		{ID: "high", Exec: high, Autostart: true, Priority: 90},
	}

	c, skip := SelectCandidate(manifests, "", "", "/run/bb-auth.sock")
	require.Empty(t, skip)
	require.Equal(t, "high", c.ID)
}

func TestSelectCandidate_TieBreaksByID(t *testing.T) {
	dir := t.TempDir()
	bExec := writeExecutable(t, dir, "b")
	aExec := writeExecutable(t, dir, "a")

	manifests := []manifest.Manifest{
		{ID: "b", Exec: bExec, Autostart: true, Priority: 50},
		{ID: "a", Exec: aExec, Autostart: true, Priority: 50},
	}

	c, skip := SelectCandidate(manifests, "", "", "/run/bb-auth.sock")
	require.Empty(t, skip)
	require.Equal(t, "a", c.ID)
}

func TestSelectCandidate_SkipsNonExecutableFallsThroughToNextCandidate(t *testing.T) {
	dir := t.TempDir()
	good := writeExecutable(t, dir, "good")
	missing := filepath.Join(dir, "does-not-exist")

	manifests := []manifest.Manifest{
		{ID: "broken", Exec: missing, Autostart: true, Priority: 100},
		{ID: "good", Exec: good, Autostart: true, Priority: 10},
	}

	c, skip := SelectCandidate(manifests, "", "", "/run/bb-auth.sock")
	require.Empty(t, skip)
	require.Equal(t, "good", c.ID)
}

func TestSelectCandidate_IgnoresNonAutostart(t *testing.T) {
	dir := t.TempDir()
	exec := writeExecutable(t, dir, "foo")
	manifests := []manifest.Manifest{
		{ID: "foo", Exec: exec, Autostart: false, Priority: 1000},
	}
	c, skip := SelectCandidate(manifests, "", "", "/run/bb-auth.sock")
	require.Empty(t, c.ID)
	require.Contains(t, skip, "no launchable provider candidate")
}

func TestSelectCandidate_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	fallback := writeExecutable(t, dir, "default")

	c, skip := SelectCandidate(nil, "", fallback, "/run/bb-auth.sock")
	require.Empty(t, skip)
	require.Equal(t, legacyDefaultID, c.ID)
}

func TestSelectCandidate_NoCandidateAtAll(t *testing.T) {
	c, skip := SelectCandidate(nil, "", "", "/run/bb-auth.sock")
	require.Empty(t, c.ID)
	require.Equal(t, "skip: no launchable provider candidate", skip)
}

func TestComputeBackoff_GrowsAndCaps(t *testing.T) {
	for failures := 0; failures < 20; failures++ {
		d := computeBackoff(failures)
		require.GreaterOrEqual(t, d, BaseBackoff)
		require.LessOrEqual(t, d, MaxBackoff+jitterMaxMs*time.Millisecond)
	}
}

func TestRetryTracker_ThrottlesUntilEligible(t *testing.T) {
	tracker := NewRetryTracker()
	start := int64(1_000_000)

	ok, _ := tracker.CanAttempt("p1", start)
	require.True(t, ok)

	tracker.MarkFailure("p1", start)
	ok, detail := tracker.CanAttempt("p1", start+1)
	require.False(t, ok)
	require.Contains(t, detail, "skip: launch throttled until")

	ok, _ = tracker.CanAttempt("p1", start+int64(MaxBackoff/time.Millisecond)+200)
	require.True(t, ok)
}

func TestRetryTracker_SuccessClearsState(t *testing.T) {
	tracker := NewRetryTracker()
	tracker.MarkFailure("p1", 0)
	tracker.MarkSuccess("p1")
	ok, _ := tracker.CanAttempt("p1", 0)
	require.True(t, ok)
}

// TestLauncher_ConsecutiveFailuresAreSeparatedByAtLeastBaseBackoff is the
// launcher back-off property from the testable-properties list (§8):
// two consecutive failed launches of the same manifest id must be
// separated in eligibility by at least base_backoff.
func TestLauncher_ConsecutiveFailuresAreSeparatedByAtLeastBaseBackoff(t *testing.T) {
	dir := t.TempDir()
	exec := writeExecutable(t, dir, "flaky")
	manifests := []manifest.Manifest{{ID: "flaky", Exec: exec, Autostart: true, Priority: 1}}

	clock := int64(0)
	l := NewLauncher("/run/bb-auth.sock", "", "",
		WithClock(func() time.Time { return time.UnixMilli(clock) }),
		WithSpawnFunc(func(ctx context.Context, c Candidate) (int, error) {
			return 0, context.DeadlineExceeded
		}),
	)

	_, id1, detail1 := l.Attempt(context.Background(), manifests)
	require.Equal(t, "flaky", id1)
	require.NotEmpty(t, detail1)

	clock += BaseBackoff.Milliseconds() - 1
	_, _, detail2 := l.Attempt(context.Background(), manifests)
	require.Contains(t, detail2, "throttled")

	clock += int64(MaxBackoff/time.Millisecond) + 200
	pid, id3, detail3 := l.Attempt(context.Background(), manifests)
	require.Equal(t, "flaky", id3)
	require.Contains(t, detail3, "launch failed")
	require.Equal(t, 0, pid)
}

func TestLauncher_SuccessfulSpawnReturnsPID(t *testing.T) {
	dir := t.TempDir()
	exec := writeExecutable(t, dir, "ok")
	manifests := []manifest.Manifest{{ID: "ok", Exec: exec, Autostart: true, Priority: 1}}

	l := NewLauncher("/run/bb-auth.sock", "", "",
		WithSpawnFunc(func(ctx context.Context, c Candidate) (int, error) {
			return 4242, nil
		}),
	)

	pid, id, detail := l.Attempt(context.Background(), manifests)
	require.Equal(t, 4242, pid)
	require.Equal(t, "ok", id)
	require.Empty(t, detail)
}
