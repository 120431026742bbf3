// Package actor attributes an authorisation request's subject PID to a
// user-facing application by walking /proc ancestry and matching the
// resulting executable against the desktop-entry index.
package actor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxAncestryHops bounds the ppid walk (§4.6).
const maxAncestryHops = 16

// knownBridgeExecs are setuid launchers whose resolved exe allows ancestry
// traversal to continue across a UID boundary.
var knownBridgeExecs = map[string]bool{
	"/usr/bin/pkexec": true,
	"/bin/pkexec":     true,
	"/usr/bin/sudo":   true,
	"/bin/sudo":       true,
}

// knownBridgeNames are the process names pkexec/sudo present as, used only
// when exe is unreadable and euid is 0 (§4.6 bridge detection, second arm).
var knownBridgeNames = map[string]bool{
	"pkexec": true,
	"sudo":   true,
}

// ProcInfo is a single /proc/<pid> snapshot.
type ProcInfo struct {
	PID     int
	PPID    int
	RUID    int
	EUID    int
	Exe     string
	Cmdline []string
	Name    string
}

// readProcInfo reads /proc/<pid>/{exe,cmdline,status}. A missing or
// unreadable exe symlink is not an error: Exe is left empty and callers
// fall through to the unreadable-exe bridge check.
func readProcInfo(procRoot string, pid int) (ProcInfo, error) {
	info := ProcInfo{PID: pid}

	dir := filepath.Join(procRoot, strconv.Itoa(pid))

	if exe, err := os.Readlink(filepath.Join(dir, "exe")); err == nil {
		info.Exe = exe
	}

	if cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil { //nolint:gosec // G304: pid comes from the PolicyKit subject, not free-form input
		parts := strings.Split(string(cmdline), "\x00")
		for _, p := range parts {
			if p != "" {
				info.Cmdline = append(info.Cmdline, p)
			}
		}
	}

	statusPath := filepath.Join(dir, "status")
	f, err := os.Open(statusPath) //nolint:gosec // G304: constructed from procRoot + numeric pid
	if err != nil {
		return info, fmt.Errorf("actor: read %s: %w", statusPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	info.EUID = -1
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Name:"):
			info.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
		case strings.HasPrefix(line, "PPid:"):
			info.PPID, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "PPid:")))
		case strings.HasPrefix(line, "Uid:"):
			// Uid: <real> <effective> <saved> <fs>
			fields := strings.Fields(strings.TrimPrefix(line, "Uid:"))
			if len(fields) > 0 {
				info.RUID, _ = strconv.Atoi(fields[0])
			}
			if len(fields) > 1 {
				info.EUID, _ = strconv.Atoi(fields[1])
			}
		}
	}
	if info.EUID < 0 {
		info.EUID = info.RUID
	}

	return info, nil
}

// isBridge reports whether proc is a UID-crossing bridge that ancestry
// traversal may continue through (§4.6 bridge detection).
func isBridge(proc ProcInfo, exeReadable bool) bool {
	if exeReadable {
		return knownBridgeExecs[proc.Exe]
	}
	return proc.EUID == 0 && knownBridgeNames[strings.ToLower(proc.Name)]
}

// WalkAncestry walks the ppid chain starting at pid, for at most
// maxAncestryHops, stopping per the rules in §4.6. It returns the chain of
// ProcInfo visited, in order from pid upward; the last entry is the
// process the resolver attributes the request to. An ancestor with a
// different real uid that is not a bridge ends the walk without being
// added; the starting process itself is always kept.
func WalkAncestry(procRoot string, pid, daemonUID, selfPID int) ([]ProcInfo, error) {
	if procRoot == "" {
		procRoot = "/proc"
	}

	var chain []ProcInfo
	seen := make(map[int]bool)
	current := pid

	for hop := 0; hop < maxAncestryHops; hop++ {
		if current <= 1 || current == selfPID || seen[current] {
			break
		}
		seen[current] = true

		info, err := readProcInfo(procRoot, current)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			break
		}
		exeReadable := info.Exe != ""
		if info.RUID != daemonUID && !isBridge(info, exeReadable) {
			if len(chain) == 0 {
				chain = append(chain, info)
			}
			break
		}
		chain = append(chain, info)

		if info.PPID <= 1 || info.PPID == selfPID {
			break
		}
		current = info.PPID
	}

	return chain, nil
}
