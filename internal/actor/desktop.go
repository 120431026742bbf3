package actor

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DesktopEntry is the subset of a .desktop file's [Desktop Entry] group
// relevant to actor matching.
type DesktopEntry struct {
	ID        string // file basename without .desktop, e.g. "org.foo.Bar"
	Name      string
	Icon      string
	Exec      string
	TryExec   string
	NoDisplay bool
}

// DesktopIndex matches exe basenames against installed .desktop entries.
type DesktopIndex struct {
	entries []DesktopEntry
}

// BuildDesktopIndex scans dirs (each an "applications" directory, in
// $XDG_DATA_DIRS precedence order) for *.desktop files, skipping entries
// marked NoDisplay=true.
func BuildDesktopIndex(dirs []string) *DesktopIndex {
	idx := &DesktopIndex{}
	seen := make(map[string]bool)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".desktop") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			id := strings.TrimSuffix(name, ".desktop")
			if seen[id] {
				continue
			}
			entry, err := parseDesktopFile(filepath.Join(dir, name))
			if err != nil || entry.NoDisplay {
				continue
			}
			entry.ID = id
			seen[id] = true
			idx.entries = append(idx.entries, entry)
		}
	}

	return idx
}

func parseDesktopFile(path string) (DesktopEntry, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path built from a scanned XDG applications directory
	if err != nil {
		return DesktopEntry{}, err
	}
	defer f.Close()

	var entry DesktopEntry
	inGroup := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inGroup = line == "[Desktop Entry]"
			continue
		}
		if !inGroup {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "Name":
			if entry.Name == "" {
				entry.Name = value
			}
		case "Icon":
			entry.Icon = value
		case "Exec":
			entry.Exec = value
		case "TryExec":
			entry.TryExec = value
		case "NoDisplay":
			entry.NoDisplay = value == "true"
		}
	}

	return entry, nil
}

func execBasename(execLine string) string {
	fields := strings.Fields(execLine)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

// Match finds the desktop entry for exeBasename by §4.6's priority order:
// (1) exact <exe-basename>.desktop id, (2) case-insensitive id match,
// (3) Exec basename match, (4) TryExec basename match.
func (idx *DesktopIndex) Match(exeBasename string) (DesktopEntry, bool) {
	if idx == nil || exeBasename == "" {
		return DesktopEntry{}, false
	}

	for _, e := range idx.entries {
		if e.ID == exeBasename {
			return e, true
		}
	}
	lower := strings.ToLower(exeBasename)
	for _, e := range idx.entries {
		if strings.ToLower(e.ID) == lower {
			return e, true
		}
	}
	for _, e := range idx.entries {
		if execBasename(e.Exec) == exeBasename {
			return e, true
		}
	}
	for _, e := range idx.entries {
		if execBasename(e.TryExec) == exeBasename {
			return e, true
		}
	}

	return DesktopEntry{}, false
}

// ApplicationDirs returns the $XDG_DATA_DIRS/applications directories (and
// the user equivalent) in lookup order.
func ApplicationDirs(env func(string) string, homeDir string) []string {
	var dirs []string

	dataHome := env("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(homeDir, ".local", "share")
	}
	dirs = append(dirs, filepath.Join(dataHome, "applications"))

	dataDirs := env("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}
	for _, d := range strings.Split(dataDirs, ":") {
		if d == "" {
			continue
		}
		dirs = append(dirs, filepath.Join(d, "applications"))
	}

	return dirs
}
