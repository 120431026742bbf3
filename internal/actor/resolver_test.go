package actor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolver_DesktopConfidenceOnMatch(t *testing.T) {
	procRoot := t.TempDir()
	writeFakeProc(t, procRoot, fakeProc{pid: 100, ppid: 1, ruid: 1000, euid: 1000, name: "firefox", exe: "/usr/bin/firefox"})

	appDir := t.TempDir()
	writeDesktopFile(t, appDir, "firefox.desktop", "[Desktop Entry]\nName=Firefox\nExec=/usr/bin/firefox %u\n")
	idx := BuildDesktopIndex([]string{appDir})

	resolver := NewResolver(procRoot, 1000, 999, idx)
	info, err := resolver.Resolve(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, ConfidenceDesktop, info.Confidence)
	require.Equal(t, "Firefox", info.DisplayName)
	require.Equal(t, "F", info.FallbackLetter)
}

func TestResolver_ExeOnlyWhenNoDesktopMatch(t *testing.T) {
	procRoot := t.TempDir()
	writeFakeProc(t, procRoot, fakeProc{pid: 100, ppid: 1, ruid: 1000, euid: 1000, name: "mytool", exe: "/usr/local/bin/mytool"})

	idx := BuildDesktopIndex([]string{t.TempDir()})
	resolver := NewResolver(procRoot, 1000, 999, idx)

	info, err := resolver.Resolve(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, ConfidenceExeOnly, info.Confidence)
	require.Equal(t, "mytool", info.DisplayName)
}

func TestResolver_UnknownWhenExeUnreadable(t *testing.T) {
	procRoot := t.TempDir()
	writeFakeProc(t, procRoot, fakeProc{pid: 100, ppid: 1, ruid: 1000, euid: 1000, name: "mytool"})

	idx := BuildDesktopIndex([]string{t.TempDir()})
	resolver := NewResolver(procRoot, 1000, 999, idx)

	info, err := resolver.Resolve(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, ConfidenceUnknown, info.Confidence)
	require.Equal(t, "Unknown", info.DisplayName)
	require.Equal(t, "U", info.FallbackLetter)
}

func TestResolver_CachesByPID(t *testing.T) {
	procRoot := t.TempDir()
	writeFakeProc(t, procRoot, fakeProc{pid: 100, ppid: 1, ruid: 1000, euid: 1000, name: "mytool", exe: "/usr/bin/mytool"})

	idx := BuildDesktopIndex([]string{t.TempDir()})
	resolver := NewResolver(procRoot, 1000, 999, idx)

	first, err := resolver.Resolve(context.Background(), 100)
	require.NoError(t, err)

	// Remove the backing /proc entry; a cached result must still be
	// returned rather than erroring.
	require.NoError(t, os.RemoveAll(filepath.Join(procRoot, "100")))

	second, err := resolver.Resolve(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
