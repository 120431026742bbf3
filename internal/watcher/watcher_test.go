package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyhab/bb-auth/internal/watcher"
)

func TestManifestWatcher_DebouncesMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "quickshell-auth.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte(`{}`), 0644))

	w, err := watcher.NewManifestWatcher([]string{dir})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	for i := 0; i < 10; i++ {
		data := []byte(fmt.Sprintf(`{"n":%d}`, i))
		require.NoError(t, os.WriteFile(manifestPath, data, 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
		// Expected: rapid writes coalesce into one signal.
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
		// Expected.
	}
}

func TestManifestWatcher_IgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	otherPath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(otherPath, []byte("initial"), 0644))

	w, err := watcher.NewManifestWatcher([]string{dir})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	require.NoError(t, os.WriteFile(otherPath, []byte("updated"), 0644))

	select {
	case <-onChange:
		t.Fatal("should not notify for non-manifest files")
	case <-time.After(150 * time.Millisecond):
		// Expected.
	}
}

func TestDesktopEntryWatcher_TriggersOnDesktopFiles(t *testing.T) {
	dir := t.TempDir()
	entryPath := filepath.Join(dir, "firefox.desktop")

	w, err := watcher.NewDesktopEntryWatcher([]string{dir})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	require.NoError(t, os.WriteFile(entryPath, []byte("[Desktop Entry]"), 0644))

	select {
	case <-onChange:
		// Expected.
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected notification for new .desktop file")
	}
}

func TestWatcher_StopDoesNotHang(t *testing.T) {
	dir := t.TempDir()

	w, err := watcher.NewManifestWatcher([]string{dir})
	require.NoError(t, err, "failed to create watcher")

	_, err = w.Start()
	require.NoError(t, err, "failed to start watcher")

	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Stop(), "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
		// Expected.
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}

func TestWatcher_MissingDirectoryDoesNotFailStart(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist")

	w, err := watcher.NewManifestWatcher([]string{missing})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	_, err = w.Start()
	require.NoError(t, err, "Start should tolerate a missing directory")
}
