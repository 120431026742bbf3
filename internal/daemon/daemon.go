// Package daemon wires the session store, provider registry, actor
// resolver, provider launcher, and IPC server into the single process
// core described by the event router (§4.9): every inbound event — from
// PolicyKit (via the Polkit* boundary), the keyring shim, or a pinentry
// front-end (the latter two over the control socket) — is dispatched
// against the shared session table, and every resulting event decides
// whether a provider needs to be launched and whether the originating
// subsystem owes a terminal callback.
package daemon

import (
	"context"
	"sync"

	"github.com/anthonyhab/bb-auth/internal/actor"
	"github.com/anthonyhab/bb-auth/internal/ipc"
	"github.com/anthonyhab/bb-auth/internal/launcher"
	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/anthonyhab/bb-auth/internal/manifest"
	"github.com/anthonyhab/bb-auth/internal/provider"
	"github.com/anthonyhab/bb-auth/internal/session"
	"github.com/anthonyhab/bb-auth/internal/watcher"
	"go.opentelemetry.io/otel"
)

// Config is everything the daemon core needs at construction, resolved
// by internal/config before New is called.
type Config struct {
	SocketPath           string
	ProviderDirs         []string
	LegacyFallbackPath   string
	DefaultFallbackPath  string
	FingerprintAvailable bool
	DesktopDBPath        string   // sqlite path for the desktop-entry index (§4.11); "" disables it
	ApplicationDirs      []string // XDG applications dirs to watch/index
}

// Daemon is the single owner of the session table, provider table, and
// launcher retry state (§5's single-writer model) — a struct passed by
// reference everywhere it's needed, replacing the original agent's
// process-wide singleton (§9's design note on `g_pAgent`).
type Daemon struct {
	cfg       Config
	sessions  *session.Store
	providers *provider.Registry
	resolver  *actor.Resolver
	launcher  *launcher.Launcher
	ipc       *ipc.Server

	mu           sync.Mutex
	manifests    []manifest.Manifest
	responders   map[string]PolkitResponder
	desktopStore *actor.DesktopStore
}

// New builds a Daemon around a freshly-constructed session store and
// provider registry. resolver may be nil (PolkitInitiate then skips
// requestor attribution rather than failing the session).
func New(cfg Config, resolver *actor.Resolver) *Daemon {
	d := &Daemon{
		cfg:        cfg,
		sessions:   session.NewStore(),
		providers:  provider.NewRegistry(),
		resolver:   resolver,
		responders: make(map[string]PolkitResponder),
	}
	d.launcher = launcher.NewLauncher(cfg.SocketPath, cfg.LegacyFallbackPath, cfg.DefaultFallbackPath)
	d.ipc = ipc.NewServer(cfg.SocketPath, d.sessions, d.providers, d)
	// Uses the process-global TracerProvider (a no-op until
	// tracing.NewProvider is called with Enabled=true), so dispatch
	// spans cost nothing unless tracing is actually configured.
	d.ipc.SetTracer(otel.Tracer("bb-authd/ipc"))
	return d
}

// IPC exposes the control-socket server, for the CLI's one-shot commands
// to dial directly and for tests.
func (d *Daemon) IPC() *ipc.Server { return d.ipc }

// Sessions exposes the session table, read-only use by callers outside
// this package (e.g. a status/debug surface).
func (d *Daemon) Sessions() *session.Store { return d.sessions }

// Providers exposes the provider registry, same rationale as Sessions.
func (d *Daemon) Providers() *provider.Registry { return d.providers }

// Run discovers provider manifests, starts watching the manifest
// directories for drop-ins (SPEC_FULL.md §4.11), and starts the IPC
// listener. It blocks until ctx is cancelled or the listener fails for a
// reason other than being closed by us.
func (d *Daemon) Run(ctx context.Context) error {
	d.RefreshManifests()

	if w, err := watcher.NewManifestWatcher(d.cfg.ProviderDirs); err != nil {
		log.Warn(log.CatLauncher, "manifest watcher unavailable, discovery will only run at startup", "error", err)
	} else if changes, err := w.Start(); err != nil {
		log.Warn(log.CatLauncher, "manifest watcher failed to start", "error", err)
	} else {
		log.SafeGo("manifest-watch", func() { d.watchManifests(ctx, w, changes) })
	}

	d.startDesktopIndex(ctx)

	errCh := make(chan error, 1)
	log.SafeGo("ipc-listener", func() { errCh <- d.ipc.ListenAndServe() })

	select {
	case <-ctx.Done():
		err := d.ipc.Close()
		if d.desktopStore != nil {
			_ = d.desktopStore.Close()
		}
		return err
	case err := <-errCh:
		if d.desktopStore != nil {
			_ = d.desktopStore.Close()
		}
		return err
	}
}

// startDesktopIndex opens the desktop-entry sqlite index (§4.11), does an
// initial Refresh into the resolver, and starts a watcher over
// ApplicationDirs so later .desktop changes update the resolver's index
// without a restart. Skipped silently (not an error) when DesktopDBPath
// is unset or no resolver is configured, matching how a missing provider
// dir is treated as absent rather than an error.
func (d *Daemon) startDesktopIndex(ctx context.Context) {
	if d.cfg.DesktopDBPath == "" || d.resolver == nil {
		return
	}

	store, err := actor.OpenDesktopStore(d.cfg.DesktopDBPath)
	if err != nil {
		log.Warn(log.CatDB, "desktop index unavailable, falling back to the resolver's built-in index", "error", err)
		return
	}
	d.desktopStore = store

	idx, err := store.Refresh(ctx, d.cfg.ApplicationDirs)
	if err != nil {
		log.Warn(log.CatDB, "initial desktop index refresh failed", "error", err)
	} else {
		d.resolver.UpdateDesktopIndex(idx)
	}

	w, err := watcher.NewDesktopEntryWatcher(d.cfg.ApplicationDirs)
	if err != nil {
		log.Warn(log.CatDB, "desktop entry watcher unavailable, index will only refresh at startup", "error", err)
		return
	}
	changes, err := w.Start()
	if err != nil {
		log.Warn(log.CatDB, "desktop entry watcher failed to start", "error", err)
		return
	}
	log.SafeGo("desktop-index-watch", func() { d.watchDesktopEntries(ctx, w, changes) })
}

func (d *Daemon) watchDesktopEntries(ctx context.Context, w *watcher.Watcher, changes <-chan struct{}) {
	defer func() { _ = w.Stop() }()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			idx, err := d.desktopStore.Refresh(ctx, d.cfg.ApplicationDirs)
			if err != nil {
				log.Warn(log.CatDB, "desktop index refresh failed", "error", err)
				continue
			}
			d.resolver.UpdateDesktopIndex(idx)
		}
	}
}

func (d *Daemon) watchManifests(ctx context.Context, w *watcher.Watcher, changes <-chan struct{}) {
	defer func() { _ = w.Stop() }()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			d.RefreshManifests()
		}
	}
}

// RefreshManifests re-scans the configured provider directories (§4.4).
// Called once at startup and again whenever the manifest-directory
// watcher (internal/watcher) observes a change.
func (d *Daemon) RefreshManifests() {
	result := manifest.Discover(d.cfg.ProviderDirs)
	for _, w := range result.Warnings {
		log.Warn(log.CatLauncher, "manifest discovery warning", "detail", w)
	}

	d.mu.Lock()
	d.manifests = result.Manifests
	d.mu.Unlock()

	log.Debug(log.CatLauncher, "manifests refreshed", "count", len(result.Manifests))
}

// publish fans a daemon-originated event (i.e. one the IPC layer never
// saw, because it came from the polkit boundary rather than a socket
// message) out to subscribers and feeds it back through this daemon's
// own HandleSessionEvent, mirroring what the IPC server's
// broadcastAndForward does for events it originates itself.
func (d *Daemon) publish(ev session.Event) {
	if ev.Kind == "" {
		return
	}
	d.ipc.Broadcast(ev)
	d.HandleSessionEvent(ev)
}

// HandleSessionEvent implements ipc.EventSink (§4.9): every session event
// — whether the IPC server produced it from a keyring_request/
// pinentry_request connection, or the polkit boundary produced it and
// handed it to publish — is routed here after fan-out. The daemon core decides whether a provider launch
// is due and, for polkit-sourced sessions, whether the subsystem is owed
// a terminal callback.
func (d *Daemon) HandleSessionEvent(ev session.Event) {
	d.maybeLaunchProvider()

	if ev.Kind == session.EventClosed && ev.Session.Source == session.SourcePolkit {
		d.deliverPolkitResult(ev)
	}
}

// maybeLaunchProvider implements §4.9 step 1: a pending session with no
// active provider warrants a launch attempt, subject to the launcher's
// own per-candidate back-off.
func (d *Daemon) maybeLaunchProvider() {
	if !d.sessions.HasPending() || d.providers.HasActiveProvider() {
		return
	}

	d.mu.Lock()
	manifests := d.manifests
	d.mu.Unlock()

	pid, candidate, detail := d.launcher.Attempt(context.Background(), manifests)
	if detail != "" {
		log.Debug(log.CatRouter, "provider launch skipped", "candidate", candidate, "detail", detail)
		return
	}
	log.Info(log.CatRouter, "provider launched", "candidate", candidate, "pid", pid)
}
