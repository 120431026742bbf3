package actor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDesktopStore_RefreshThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "firefox.desktop", "[Desktop Entry]\nName=Firefox\nExec=/usr/bin/firefox %u\n")
	writeDesktopFile(t, dir, "hidden.desktop", "[Desktop Entry]\nName=Hidden\nNoDisplay=true\nExec=hidden\n")

	store, err := OpenDesktopStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	built, err := store.Refresh(ctx, []string{dir})
	require.NoError(t, err)
	_, ok := built.Match("firefox")
	require.True(t, ok)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	entry, ok := loaded.Match("firefox")
	require.True(t, ok)
	require.Equal(t, "Firefox", entry.Name)
	_, ok = loaded.Match("hidden")
	require.False(t, ok, "NoDisplay entries are never persisted")
}

func TestDesktopStore_RefreshReplacesPriorContents(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "a.desktop", "[Desktop Entry]\nName=A\nExec=a\n")

	store, err := OpenDesktopStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_, err = store.Refresh(ctx, []string{dir})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.desktop")))
	writeDesktopFile(t, dir, "b.desktop", "[Desktop Entry]\nName=B\nExec=b\n")

	_, err = store.Refresh(ctx, []string{dir})
	require.NoError(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	_, ok := loaded.Match("a")
	require.False(t, ok)
	_, ok = loaded.Match("b")
	require.True(t, ok)
}

func TestDesktopStore_LoadOnEmptyStoreReturnsEmptyIndex(t *testing.T) {
	store, err := OpenDesktopStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	idx, err := store.Load(context.Background())
	require.NoError(t, err)
	_, ok := idx.Match("anything")
	require.False(t, ok)
}
