package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthonyhab/bb-auth/internal/actor"
	"github.com/anthonyhab/bb-auth/internal/daemon"
	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/anthonyhab/bb-auth/internal/manifest"
)

// defaultSystemProviderDir is the system-wide manifest directory named as
// an example in §4.4 when nothing more specific is configured.
const defaultSystemProviderDir = "/usr/share/bb-auth/providers.d"

// runServe is the default mode (no --ping/--next/--respond/--cancel):
// it resolves provider directories and the actor resolver, builds the
// daemon core, and blocks until SIGINT/SIGTERM, mirroring the teacher's
// own runDaemon's signal-handling shape (cmd/daemon.go) but against
// daemon.Daemon.Run instead of an HTTP control-plane server.
func runServe(socketPath string) error {
	providerDirs := cfg.Provider.Dirs
	if len(providerDirs) == 0 {
		home, _ := os.UserHomeDir()
		providerDirs = manifest.SearchDirs(os.Getenv, home, defaultSystemProviderDir)
	}

	resolver := actor.NewResolver("/proc", os.Getuid(), os.Getpid(), nil)

	d := daemon.New(daemon.Config{
		SocketPath:           socketPath,
		ProviderDirs:         providerDirs,
		LegacyFallbackPath:   os.Getenv("BB_AUTH_FALLBACK_PATH"),
		DefaultFallbackPath:  cfg.Fallback.DefaultPath,
		FingerprintAvailable: cfg.Actor.FingerprintAvailable,
		DesktopDBPath:        cfg.Actor.DesktopDBPath,
		ApplicationDirs:      cfg.Actor.ApplicationDirs,
	}, resolver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info(log.CatConfig, "bb-authd starting", "socket", socketPath, "providerDirs", providerDirs)

	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("daemon exited: %w", err)
	}

	log.Info(log.CatConfig, "bb-authd stopped")
	return nil
}
