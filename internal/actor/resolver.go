package actor

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anthonyhab/bb-auth/internal/cachemanager"
	"github.com/rivo/uniseg"
)

// Confidence tags how an ActorInfo was attributed (§2 glossary).
type Confidence string

const (
	ConfidenceDesktop Confidence = "desktop"
	ConfidenceExeOnly Confidence = "exe-only"
	ConfidenceUnknown Confidence = "unknown"
)

// ActorInfo is the trust-attributed identity of the process a request is
// charged to.
type ActorInfo struct {
	Proc          ProcInfo
	Desktop       DesktopEntry
	HasDesktop    bool
	DisplayName   string
	FallbackLetter string
	Confidence    Confidence
}

// Resolver attributes subject PIDs to ActorInfo, caching results for a
// short TTL since the same pid is commonly re-queried across a flow's
// retries.
type Resolver struct {
	procRoot  string
	daemonUID int
	selfPID   int
	desktop   atomic.Pointer[DesktopIndex]
	cache     *cachemanager.InMemoryCacheManager[string, ActorInfo]
	ttl       time.Duration
}

// pidCacheTTL is short: process identity can change across a pid's
// lifetime (pid reuse), so entries must not outlive a single auth flow by
// much.
const pidCacheTTL = 10 * time.Second

// NewResolver builds a Resolver over desktop, the daemon's own uid and
// pid (used to bound ancestry traversal), and procRoot ("/proc" in
// production, overridable in tests).
func NewResolver(procRoot string, daemonUID, selfPID int, desktop *DesktopIndex) *Resolver {
	r := &Resolver{
		procRoot:  procRoot,
		daemonUID: daemonUID,
		selfPID:   selfPID,
		cache:     cachemanager.NewInMemoryCacheManager[string, ActorInfo]("actor-pid", pidCacheTTL, pidCacheTTL*3),
		ttl:       pidCacheTTL,
	}
	if desktop == nil {
		desktop = &DesktopIndex{}
	}
	r.desktop.Store(desktop)
	return r
}

// UpdateDesktopIndex swaps in a freshly-rebuilt DesktopIndex, used when the
// desktop-entry directory watcher (§4.11) observes a change and a
// DesktopStore.Refresh has produced a new index. Safe to call concurrently
// with Resolve — in-flight resolutions finish against whichever index was
// current when they started.
func (r *Resolver) UpdateDesktopIndex(desktop *DesktopIndex) {
	if desktop == nil {
		desktop = &DesktopIndex{}
	}
	r.desktop.Store(desktop)
	_ = r.cache.Flush(context.Background())
}

// Resolve attributes pid to an ActorInfo, per §4.6's ancestry walk,
// bridge detection, and desktop-entry matching.
func (r *Resolver) Resolve(ctx context.Context, pid int) (ActorInfo, error) {
	key := cacheKey(pid)
	if cached, ok := r.cache.Get(ctx, key); ok {
		return cached, nil
	}

	chain, err := WalkAncestry(r.procRoot, pid, r.daemonUID, r.selfPID)
	if err != nil || len(chain) == 0 {
		return ActorInfo{Confidence: ConfidenceUnknown, DisplayName: "Unknown", FallbackLetter: "U"}, err
	}

	desktop := r.desktop.Load()
	attributed := chain[len(chain)-1]
	for _, candidate := range chain {
		if candidate.Exe == "" {
			continue
		}
		if _, ok := desktop.Match(filepath.Base(candidate.Exe)); ok {
			attributed = candidate
			break
		}
	}

	info := buildActorInfo(attributed, desktop)
	r.cache.Set(ctx, key, info, r.ttl)
	return info, nil
}

func buildActorInfo(proc ProcInfo, desktop *DesktopIndex) ActorInfo {
	info := ActorInfo{Proc: proc}

	if proc.Exe != "" {
		if entry, ok := desktop.Match(filepath.Base(proc.Exe)); ok {
			info.Desktop = entry
			info.HasDesktop = true
			info.Confidence = ConfidenceDesktop
			info.DisplayName = entry.Name
		}
	}

	if info.DisplayName == "" && proc.Exe != "" {
		info.Confidence = ConfidenceExeOnly
		info.DisplayName = filepath.Base(proc.Exe)
	}

	if info.DisplayName == "" {
		info.Confidence = ConfidenceUnknown
		info.DisplayName = "Unknown"
	}

	info.FallbackLetter = fallbackLetter(info.DisplayName)
	return info
}

// fallbackLetter returns the first grapheme cluster of name, uppercased.
// Using grapheme clusters (not bare runes) keeps combining marks and
// other multi-rune clusters in requestor/exe names intact instead of
// splitting them (§4.8 leans on the same library for display widths).
func fallbackLetter(name string) string {
	cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(name, -1)
	if cluster == "" {
		return "U"
	}
	return strings.ToUpper(cluster)
}

func cacheKey(pid int) string {
	return "pid:" + strconv.Itoa(pid)
}
