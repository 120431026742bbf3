package actor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDesktopFile(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644))
}

func TestBuildDesktopIndex_SkipsNoDisplay(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "hidden.desktop", "[Desktop Entry]\nName=Hidden\nNoDisplay=true\nExec=hidden\n")
	writeDesktopFile(t, dir, "visible.desktop", "[Desktop Entry]\nName=Visible\nExec=visible\n")

	idx := BuildDesktopIndex([]string{dir})
	_, ok := idx.Match("hidden")
	require.False(t, ok)
	entry, ok := idx.Match("visible")
	require.True(t, ok)
	require.Equal(t, "Visible", entry.Name)
}

func TestDesktopIndex_MatchPriorityOrder(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "firefox.desktop", "[Desktop Entry]\nName=Firefox\nExec=/usr/bin/firefox %u\n")
	writeDesktopFile(t, dir, "other.desktop", "[Desktop Entry]\nName=Other\nExec=firefox --other-flag\n")

	idx := BuildDesktopIndex([]string{dir})

	// Exact id match wins even though "other.desktop" also references
	// firefox in its Exec line.
	entry, ok := idx.Match("firefox")
	require.True(t, ok)
	require.Equal(t, "Firefox", entry.Name)
}

func TestDesktopIndex_CaseInsensitiveFallback(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "GIMP.desktop", "[Desktop Entry]\nName=GIMP\nExec=gimp\n")

	idx := BuildDesktopIndex([]string{dir})
	entry, ok := idx.Match("gimp")
	require.True(t, ok)
	require.Equal(t, "GIMP", entry.Name)
}

func TestDesktopIndex_TryExecFallback(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "codeeditor.desktop", "[Desktop Entry]\nName=Code Editor\nTryExec=/opt/editor/bin/editor\nExec=editor-launcher %F\n")

	idx := BuildDesktopIndex([]string{dir})
	entry, ok := idx.Match("editor")
	require.True(t, ok)
	require.Equal(t, "Code Editor", entry.Name)
}

func TestDesktopIndex_NoMatch(t *testing.T) {
	idx := BuildDesktopIndex([]string{t.TempDir()})
	_, ok := idx.Match("nonexistent")
	require.False(t, ok)
}

func TestApplicationDirs_DefaultsAndOverrides(t *testing.T) {
	env := func(k string) string {
		switch k {
		case "XDG_DATA_HOME":
			return "/home/u/.local/share"
		case "XDG_DATA_DIRS":
			return "/usr/local/share:/usr/share"
		}
		return ""
	}
	dirs := ApplicationDirs(env, "/home/u")
	require.Equal(t, []string{
		"/home/u/.local/share/applications",
		"/usr/local/share/applications",
		"/usr/share/applications",
	}, dirs)
}
